package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DecodeError 表示容器无法打开或没有可解码的视频流。
// 这是资产级失败：只排除该资产，绝不能中止其他资产的处理。
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("无法解码视频 %q：%v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError 判断 err 是否为解码失败。
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// ProbeInfo 是 ffprobe 探测结果的最小可用集。
type ProbeInfo struct {
	DurationSec float64 // 0 表示未知/零时长（后续按空签名处理）
	FPS         float64 // 源视频流帧率；0 表示未知（不做 clamp）
}

// probeFunc 可替换，便于测试不依赖 ffprobe 二进制。
var probeFunc = func(path string) (string, error) {
	return ffmpeg.Probe(path)
}

// Probe 探测视频时长与源帧率。容器打不开或没有视频流 → DecodeError。
func Probe(path string) (ProbeInfo, error) {
	raw, err := probeFunc(path)
	if err != nil {
		return ProbeInfo{}, &DecodeError{Path: path, Err: err}
	}
	return parseProbe(path, raw)
}

func parseProbe(path, raw string) (ProbeInfo, error) {
	var doc struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType    string `json:"codec_type"`
			AvgFrameRate string `json:"avg_frame_rate"`
			RFrameRate   string `json:"r_frame_rate"`
			Duration     string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ProbeInfo{}, &DecodeError{Path: path, Err: fmt.Errorf("ffprobe 输出无法解析：%w", err)}
	}

	var info ProbeInfo
	found := false
	for _, s := range doc.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		// avg_frame_rate 更贴近实际；坏值（"0/0"）再退回 r_frame_rate。
		if fps := parseRational(s.AvgFrameRate); fps > 0 {
			info.FPS = fps
		} else if fps := parseRational(s.RFrameRate); fps > 0 {
			info.FPS = fps
		}
		if info.DurationSec == 0 {
			info.DurationSec = parseSeconds(s.Duration)
		}
		break
	}
	if !found {
		return ProbeInfo{}, &DecodeError{Path: path, Err: errors.New("没有可解码的视频流")}
	}

	// 容器级时长优先（部分封装格式的 stream duration 缺失或不准）。
	if d := parseSeconds(doc.Format.Duration); d > 0 {
		info.DurationSec = d
	}
	return info, nil
}

// parseRational 解析 ffprobe 的分数形式帧率（"30000/1001"、"25/1"）。
// 解析失败或分母为零返回 0。
func parseRational(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0
		}
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

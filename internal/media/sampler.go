package media

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/John-Robertt/VDAC/internal/infra/imgx"
)

// Frame 是采样得到的一帧（解码后的位图 + 时间戳 + 序号）。
// 只在采样/哈希流水线内存活，从不落盘、不持久化。
type Frame struct {
	Image        image.Image
	Index        int
	TimestampSec float64
}

// FrameSeq 是某个资产的惰性帧序列：Next 按时间序逐帧解码，Close 释放临时目录。
//
// 约束：
// - 有限、不可重置、不可并发消费；一次 Build 消费一次
// - 单帧解码失败只跳过该时间戳，不中止序列
// - 帧图像一次只在内存里存在一张（解码发生在 Next 内，而不是 Open 时）
type FrameSeq struct {
	rate  float64
	dir   string
	paths []string
	next  int
}

const framePattern = "frame_%06d.jpg"

// extractFunc 可替换：测试用预置帧目录替代真实 ffmpeg 抽帧。
var extractFunc = runExtract

// OpenFrames 打开一个视频的采样帧序列。
//
// 采样时间戳为 0, 1/R, 2/R… 直到视频结束；R 高于源帧率时 clamp 到源帧率，
// 避免重复帧虚增相似度。返回的 durationSec 来自探测结果，供比较阶段的
// 时长预过滤使用。
//
// 失败语义：容器打不开/没有视频流/抽帧整体失败 → DecodeError（资产级）。
func OpenFrames(ctx context.Context, path string, rate float64) (seq *FrameSeq, durationSec float64, err error) {
	info, err := Probe(path)
	if err != nil {
		return nil, 0, err
	}

	effRate := rate
	if info.FPS > 0 && effRate > info.FPS {
		effRate = info.FPS
	}

	dir, err := os.MkdirTemp("", "vdac-frames-*")
	if err != nil {
		return nil, 0, err
	}
	if err := extractFunc(ctx, path, dir, effRate); err != nil {
		_ = os.RemoveAll(dir)
		return nil, 0, &DecodeError{Path: path, Err: err}
	}

	paths, err := collectFramePaths(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, 0, err
	}

	return &FrameSeq{rate: effRate, dir: dir, paths: paths}, info.DurationSec, nil
}

// Rate 返回实际生效的采样率（可能已被 clamp 到源帧率）。
func (s *FrameSeq) Rate() float64 { return s.rate }

// Next 返回下一帧；序列耗尽时 ok=false。
// 单帧解码失败会被跳过（对应时间戳视为采样失败），不会返回错误。
func (s *FrameSeq) Next() (fr Frame, ok bool) {
	for s.next < len(s.paths) {
		i := s.next
		s.next++

		img, err := imgx.DecodeFrame(s.paths[i])
		if err != nil {
			continue
		}
		return Frame{
			Image:        img,
			Index:        i,
			TimestampSec: float64(i) / s.rate,
		}, true
	}
	return Frame{}, false
}

// Close 删除帧临时目录。必须在消费完毕后调用（defer）。
func (s *FrameSeq) Close() error {
	return os.RemoveAll(s.dir)
}

func runExtract(ctx context.Context, src, dir string, rate float64) error {
	// 取消只在抽帧开始前生效：单个资产的抽帧必须完整跑完或整体失败。
	if err := ctx.Err(); err != nil {
		return err
	}

	// fps 滤镜按固定间隔取帧并编号输出；q:v=2 保证哈希输入质量稳定。
	out := filepath.Join(dir, framePattern)
	return ffmpeg.Input(src).
		Output(out, ffmpeg.KwArgs{
			"vf":  fmt.Sprintf("fps=%g", rate),
			"q:v": "2",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
}

// collectFramePaths 收集抽帧产物并按帧号排序（ffmpeg 编号从 1 开始）。
func collectFramePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n    int
		path string
	}
	frames := make([]numbered, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".jpg")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		frames = append(frames, numbered{n: n, path: filepath.Join(dir, name)})
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].n < frames[j].n })

	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		paths = append(paths, f.path)
	}
	return paths, nil
}

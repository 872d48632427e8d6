package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

const probeJSON = `{
  "format": {"duration": "10.5"},
  "streams": [
    {"codec_type": "audio", "avg_frame_rate": "0/0", "r_frame_rate": "0/0"},
    {"codec_type": "video", "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1", "duration": "10.0"}
  ]
}`

func TestParseProbe_VideoStream(t *testing.T) {
	info, err := parseProbe("/v.mp4", probeJSON)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// avg_frame_rate 优先。
	want := 30000.0 / 1001
	if info.FPS != want {
		t.Fatalf("FPS 错误：%g（期望 %g）", info.FPS, want)
	}
	// 容器级时长优先于 stream 时长。
	if info.DurationSec != 10.5 {
		t.Fatalf("时长错误：%g", info.DurationSec)
	}
}

func TestParseProbe_AvgFrameRateFallback(t *testing.T) {
	raw := `{"streams": [{"codec_type": "video", "avg_frame_rate": "0/0", "r_frame_rate": "25/1"}]}`
	info, err := parseProbe("/v.mp4", raw)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if info.FPS != 25 {
		t.Fatalf("avg 坏值应退回 r_frame_rate：%g", info.FPS)
	}
}

func TestParseProbe_NoVideoStream(t *testing.T) {
	raw := `{"streams": [{"codec_type": "audio"}]}`
	_, err := parseProbe("/v.mp4", raw)
	if !IsDecodeError(err) {
		t.Fatalf("没有视频流应为 DecodeError：%T %v", err, err)
	}
}

func TestParseProbe_BadJSON(t *testing.T) {
	_, err := parseProbe("/v.mp4", "{not json")
	if !IsDecodeError(err) {
		t.Fatalf("坏输出应为 DecodeError：%T %v", err, err)
	}
}

func TestProbe_FFprobeFailure(t *testing.T) {
	old := probeFunc
	probeFunc = func(path string) (string, error) {
		return "", errors.New("moov atom not found")
	}
	defer func() { probeFunc = old }()

	_, err := Probe("/corrupt.mp4")
	if !IsDecodeError(err) {
		t.Fatalf("ffprobe 失败应为 DecodeError：%T %v", err, err)
	}
}

func TestParseRational(t *testing.T) {
	cases := map[string]float64{
		"25/1":       25,
		"30000/1001": 30000.0 / 1001,
		"24":         24,
		"0/0":        0,
		"x/1":        0,
		"1/x":        0,
		"":           0,
		"-5":         0,
	}
	for in, want := range cases {
		if got := parseRational(in); got != want {
			t.Fatalf("parseRational(%q) = %g，期望 %g", in, got, want)
		}
	}
}

func TestParseSeconds(t *testing.T) {
	if got := parseSeconds("12.34"); got != 12.34 {
		t.Fatalf("parseSeconds 错误：%g", got)
	}
	if got := parseSeconds("N/A"); got != 0 {
		t.Fatalf("坏值应返回 0：%g", got)
	}
	if got := parseSeconds("-1"); got != 0 {
		t.Fatalf("负值应返回 0：%g", got)
	}
}

func writeFrameJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 8)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建帧文件失败：%v", err)
	}
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	_ = f.Close()
}

func TestOpenFrames_ClampAndIteration(t *testing.T) {
	oldProbe := probeFunc
	probeFunc = func(path string) (string, error) {
		return `{"format": {"duration": "3"}, "streams": [{"codec_type": "video", "avg_frame_rate": "2/1"}]}`, nil
	}
	defer func() { probeFunc = oldProbe }()

	var gotRate float64
	oldExtract := extractFunc
	extractFunc = func(ctx context.Context, src, dir string, rate float64) error {
		gotRate = rate
		writeFrameJPEG(t, filepath.Join(dir, "frame_000001.jpg"))
		writeFrameJPEG(t, filepath.Join(dir, "frame_000002.jpg"))
		// 一帧损坏：应被跳过，不中止序列。
		if err := os.WriteFile(filepath.Join(dir, "frame_000003.jpg"), []byte("broken"), 0o644); err != nil {
			return err
		}
		writeFrameJPEG(t, filepath.Join(dir, "frame_000004.jpg"))
		return nil
	}
	defer func() { extractFunc = oldExtract }()

	seq, dur, err := OpenFrames(context.Background(), "/v.mp4", 5)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer seq.Close()

	// 请求 5 fps，源只有 2 fps：clamp 到 2。
	if gotRate != 2 || seq.Rate() != 2 {
		t.Fatalf("采样率未 clamp 到源帧率：extract=%g seq=%g", gotRate, seq.Rate())
	}
	if dur != 3 {
		t.Fatalf("时长错误：%g", dur)
	}

	var frames []Frame
	for {
		fr, ok := seq.Next()
		if !ok {
			break
		}
		frames = append(frames, fr)
	}
	if len(frames) != 3 {
		t.Fatalf("坏帧应被跳过，期望 3 帧，实际 %d", len(frames))
	}
	// 时间戳按帧号单调递增。
	if frames[0].TimestampSec != 0 || frames[1].TimestampSec != 0.5 || frames[2].TimestampSec != 1.5 {
		t.Fatalf("时间戳错误：%v %v %v", frames[0].TimestampSec, frames[1].TimestampSec, frames[2].TimestampSec)
	}
}

func TestOpenFrames_ExtractFailureCleansTemp(t *testing.T) {
	oldProbe := probeFunc
	probeFunc = func(path string) (string, error) {
		return `{"streams": [{"codec_type": "video", "avg_frame_rate": "25/1"}]}`, nil
	}
	defer func() { probeFunc = oldProbe }()

	var tmpDir string
	oldExtract := extractFunc
	extractFunc = func(ctx context.Context, src, dir string, rate float64) error {
		tmpDir = dir
		return errors.New("Invalid data found when processing input")
	}
	defer func() { extractFunc = oldExtract }()

	_, _, err := OpenFrames(context.Background(), "/v.mp4", 1)
	if !IsDecodeError(err) {
		t.Fatalf("抽帧失败应为 DecodeError：%T %v", err, err)
	}
	if _, statErr := os.Stat(tmpDir); !os.IsNotExist(statErr) {
		t.Fatalf("抽帧失败后临时目录未清理：%q", tmpDir)
	}
}

func TestFrameSeq_CloseRemovesTemp(t *testing.T) {
	oldProbe := probeFunc
	probeFunc = func(path string) (string, error) {
		return `{"streams": [{"codec_type": "video", "avg_frame_rate": "1/1"}]}`, nil
	}
	defer func() { probeFunc = oldProbe }()

	oldExtract := extractFunc
	extractFunc = func(ctx context.Context, src, dir string, rate float64) error {
		writeFrameJPEG(t, filepath.Join(dir, "frame_000001.jpg"))
		return nil
	}
	defer func() { extractFunc = oldExtract }()

	seq, _, err := OpenFrames(context.Background(), "/v.mp4", 1)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := seq.Close(); err != nil {
		t.Fatalf("Close 失败：%v", err)
	}
	if _, err := os.Stat(seq.dir); !os.IsNotExist(err) {
		t.Fatalf("Close 后临时目录仍存在：%q", seq.dir)
	}
}

func TestRunExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runExtract(ctx, "/v.mp4", t.TempDir(), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后不应开始抽帧：%v", err)
	}
}

package compare

import (
	"testing"

	"github.com/John-Robertt/VDAC/internal/domain"
)

func sigOf(rate float64, fps ...domain.Fingerprint) domain.Signature {
	return domain.Signature{
		Fingerprints: fps,
		SampleRate:   rate,
		FrameCount:   len(fps),
		DurationSec:  float64(len(fps)) / rate,
	}
}

func TestCompare_SelfIsOne(t *testing.T) {
	s := sigOf(1, 0x1111, 0x2222, 0x3333)
	res, err := Compare(s, s, 0.95)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Score != 1 {
		t.Fatalf("自比较相似度应为 1.0：%g", res.Score)
	}
	if !res.Duplicate {
		t.Fatalf("自比较应判重复")
	}
	if res.Aligned != 3 {
		t.Fatalf("对齐数应为 3：%d", res.Aligned)
	}
}

func TestCompare_Symmetric(t *testing.T) {
	a := sigOf(1, 0x0F0F, 0xF0F0, 0xFFFF, 0x0000)
	b := sigOf(1, 0x0F0E, 0xF0F1)

	ab, err := Compare(a, b, 0.5)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	ba, err := Compare(b, a, 0.5)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ab.Score != ba.Score {
		t.Fatalf("比较不对称：%g vs %g", ab.Score, ba.Score)
	}
	if ab.Aligned != ba.Aligned {
		t.Fatalf("对齐数不对称：%d vs %d", ab.Aligned, ba.Aligned)
	}
}

func TestCompare_DifferentLengthAlignment(t *testing.T) {
	// 短序列 1 fps，长序列 2 fps：短序列的第 i 帧（t=i）应配长序列的第 2i 帧。
	short := sigOf(1, 0xAAAA, 0xBBBB)
	long := sigOf(2, 0xAAAA, 0xFFFF, 0xBBBB, 0x0000)

	res, err := Compare(short, long, 0.5)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Aligned != 2 {
		t.Fatalf("对齐数应为 2（短序列长度）：%d", res.Aligned)
	}
	// 最近时间戳配对命中相同指纹：相似度应为 1。
	if res.Score != 1 {
		t.Fatalf("对齐配对错误：score=%g", res.Score)
	}
}

func TestCompare_InsufficientData(t *testing.T) {
	one := sigOf(1, 0x1234)
	full := sigOf(1, 0x1234, 0x5678, 0x9ABC)

	_, err := Compare(one, full, 0.95)
	if err == nil {
		t.Fatalf("期望数据不足错误，但得到 nil")
	}
	if !IsInsufficientData(err) {
		t.Fatalf("期望 InsufficientDataError，实际：%T %v", err, err)
	}
}

func TestCompare_ThresholdMonotone(t *testing.T) {
	a := sigOf(1, 0x0000, 0x0000)
	b := sigOf(1, 0x0003, 0x0003) // 每帧距离 2，相似度 1-2/64 = 0.96875

	low, err := Compare(a, b, 0.9)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	high, err := Compare(a, b, 0.99)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if low.Score != high.Score {
		t.Fatalf("阈值不应影响 score：%g vs %g", low.Score, high.Score)
	}
	if !low.Duplicate {
		t.Fatalf("低阈值应判重复（score=%g）", low.Score)
	}
	if high.Duplicate {
		t.Fatalf("高阈值不应判重复（score=%g）", high.Score)
	}
}

func TestCompare_ThresholdBoundaryInclusive(t *testing.T) {
	a := sigOf(1, 0x0000, 0x0000)
	b := sigOf(1, 0x0003, 0x0003)

	res, err := Compare(a, b, 1-2.0/64)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !res.Duplicate {
		t.Fatalf("score == threshold 应判重复（score=%g）", res.Score)
	}
}

func TestShouldCompare(t *testing.T) {
	a := sigOf(1, 1, 2, 3) // 3s
	b := sigOf(1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10) // 10s

	// 默认（容忍值 <= 0）：永不过滤。
	if !ShouldCompare(a, b, 0) {
		t.Fatalf("容忍值 0 不应过滤")
	}
	if !ShouldCompare(a, b, -1) {
		t.Fatalf("负容忍值不应过滤")
	}

	// 启用后：时长差 7s > 5s 过滤，<= 10s 保留。
	if ShouldCompare(a, b, 5) {
		t.Fatalf("时长差超出容忍值应过滤")
	}
	if !ShouldCompare(a, b, 10) {
		t.Fatalf("时长差在容忍值内不应过滤")
	}

	// 时长未知：宁可多比。
	unknown := domain.Signature{Fingerprints: []domain.Fingerprint{1, 2}, SampleRate: 1}
	if !ShouldCompare(unknown, b, 5) {
		t.Fatalf("时长未知不应过滤")
	}
}

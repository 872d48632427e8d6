package compare

import (
	"errors"
	"fmt"
	"math"

	"github.com/John-Robertt/VDAC/internal/domain"
	"github.com/John-Robertt/VDAC/internal/phash"
)

// InsufficientDataError 表示对齐后的指纹对少于 2，无法给出可靠相似度。
// 对级失败：该对按非重复处理并上报，绝不中止整个 run。
type InsufficientDataError struct {
	Aligned int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("对齐指纹对不足（%d < 2），无法比较", e.Aligned)
}

// IsInsufficientData 判断 err 是否为数据不足失败。
func IsInsufficientData(err error) bool {
	var e *InsufficientDataError
	return errors.As(err, &e)
}

// Result 是一次签名比较的结论。
type Result struct {
	Score     float64 // ∈ [0,1]
	Duplicate bool    // Score >= threshold
	Aligned   int     // 参与聚合的指纹对数
}

// Compare 计算两个签名的相似度并给出是否重复的结论。
//
// 算法：
// 1) 对齐：短序列的每个指纹，配长序列中相对时间戳最近的指纹
//    （长度不同——时长/采样率不同——也能对齐，不要求等长）
// 2) 逐对算归一化汉明相似度 1 - dist/64
// 3) 取均值并 clamp 到 [0,1]
//
// 性质（有测试背书）：对称 compare(a,b)==compare(b,a)；
// 同一签名比自身得 1.0；阈值单调（升阈值只会减少重复结论）。
func Compare(a, b domain.Signature, threshold float64) (Result, error) {
	short, long := a, b
	if len(b.Fingerprints) < len(a.Fingerprints) {
		short, long = b, a
	}

	pairs := align(short, long)
	if len(pairs) < 2 {
		return Result{Aligned: len(pairs)}, &InsufficientDataError{Aligned: len(pairs)}
	}

	var sum float64
	for _, p := range pairs {
		sum += phash.Similarity(p[0], p[1])
	}
	score := sum / float64(len(pairs))
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Result{
		Score:     score,
		Duplicate: score >= threshold,
		Aligned:   len(pairs),
	}, nil
}

// ShouldCompare 是全量比较前的便宜必要条件过滤。
//
// 约束（硬）：绝不允许产生假阴性——只有当跳过的对“可被证明低于阈值”时才能跳。
// 时长差并不能严格界定均值相似度，所以该过滤默认关闭（toleranceSec <= 0），
// 只有用户显式给出容忍值时才启用。
func ShouldCompare(a, b domain.Signature, toleranceSec float64) bool {
	if toleranceSec <= 0 {
		return true
	}
	if a.DurationSec <= 0 || b.DurationSec <= 0 {
		// 时长未知：宁可多比，不可漏比。
		return true
	}
	return math.Abs(a.DurationSec-b.DurationSec) <= toleranceSec
}

// align 按最近时间戳把短序列逐一配到长序列上。
// 两侧时间戳均单调递增，双指针一遍扫完。
func align(short, long domain.Signature) [][2]domain.Fingerprint {
	out := make([][2]domain.Fingerprint, 0, len(short.Fingerprints))
	j := 0
	for i := range short.Fingerprints {
		ts := short.TimestampAt(i)
		for j+1 < len(long.Fingerprints) &&
			math.Abs(long.TimestampAt(j+1)-ts) < math.Abs(long.TimestampAt(j)-ts) {
			j++
		}
		out = append(out, [2]domain.Fingerprint{short.Fingerprints[i], long.Fingerprints[j]})
	}
	return out
}

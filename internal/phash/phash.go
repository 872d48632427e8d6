package phash

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"

	"github.com/John-Robertt/VDAC/internal/domain"
)

// 指纹算法。ahash（均值哈希）是默认值；phash 对压缩噪声更稳但更慢。
const (
	AlgoAHash = "ahash"
	AlgoPHash = "phash"
	AlgoDHash = "dhash"
)

// ValidAlgo 判断 s 是否为受支持的指纹算法名。
func ValidAlgo(s string) bool {
	switch s {
	case AlgoAHash, AlgoPHash, AlgoDHash:
		return true
	default:
		return false
	}
}

// Hash 把一帧图像转成 64 位指纹。
//
// 约束：纯函数、确定性——同一帧重复调用必须得到完全相同的指纹。
// 算法内部会把图像降采样到 8×8 网格再二值化，对均匀缩放、轻微亮度/对比度
// 偏移和再编码噪声不敏感。
func Hash(img image.Image, algo string) (domain.Fingerprint, error) {
	var h *goimagehash.ImageHash
	var err error
	switch algo {
	case AlgoPHash:
		h, err = goimagehash.PerceptionHash(img)
	case AlgoDHash:
		h, err = goimagehash.DifferenceHash(img)
	case AlgoAHash, "":
		h, err = goimagehash.AverageHash(img)
	default:
		return 0, fmt.Errorf("未知 hash_algo：%q", algo)
	}
	if err != nil {
		return 0, err
	}
	return domain.Fingerprint(h.GetHash()), nil
}

// Distance 返回两个指纹的汉明距离（0..64）。
func Distance(a, b domain.Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Similarity 返回归一化相似度 1 - dist/64，∈ [0,1]。
func Similarity(a, b domain.Fingerprint) float64 {
	return 1 - float64(Distance(a, b))/float64(domain.FingerprintBits)
}

package domain

// Fingerprint 是单帧的感知指纹：64 位位向量，经汉明距离比较。
// 对轻微缩放/压缩/色偏不敏感，对真正的内容差异敏感。
type Fingerprint uint64

// FingerprintBits 是指纹位宽（goimagehash 的原生位宽，8×8 网格）。
const FingerprintBits = 64

// Signature 是一个视频的内容签名：按时间序排列的帧指纹 + 采样元数据。
//
// 不变量：
// - Fingerprints 的插入顺序即时间顺序（语义上有意义，比较时按时间戳对齐）
// - 成功构建的签名 Fingerprints 非空；零帧视频按 EmptySignatureError 排除
// - SampleRate 是实际生效的采样率（可能已被 clamp 到源帧率）
type Signature struct {
	Fingerprints []Fingerprint `json:"fingerprints"`
	SampleRate   float64       `json:"sample_rate"`
	FrameCount   int           `json:"frame_count"`
	DurationSec  float64       `json:"duration_sec"`
	HashAlgo     string        `json:"hash_algo"`
}

// TimestampAt 返回第 i 个指纹的相对时间戳（秒）。
// 采样按 0, 1/R, 2/R… 进行，因此时间戳由下标和采样率唯一决定。
func (s Signature) TimestampAt(i int) float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(i) / s.SampleRate
}

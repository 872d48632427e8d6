package domain

// ComparisonResult 是一对视频的相似度结论。
//
// I/J 指向扫描结果 []VideoFile 的下标，约定 I < J（无序对的规范化表示；
// 自比较不会出现在结果集中）。
type ComparisonResult struct {
	I, J      int
	Score     float64 // ∈ [0,1]
	Duplicate bool    // Score >= threshold
}

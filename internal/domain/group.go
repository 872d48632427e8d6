package domain

import "time"

// DuplicateGroup 是重复关系图的一个连通分量（size ≥ 2）。
//
// 不变量：
// - 各组两两不相交；每个资产至多属于一个组
// - Canonical ∈ Members；Canonical 保留原位，其余成员归档
// - 没有任何重复边的资产不出现在任何组
type DuplicateGroup struct {
	Canonical int   // 下标指向 []VideoFile
	Members   []int // 含 Canonical；按下标升序（稳定）
}

// ArchiveState 描述归档目录现状（只 ReadDir，不读内容），用于命名冲突判定。
type ArchiveState struct {
	Dir string

	// ExistingNames 是目录内现有文件名集合，用于 O(1) 冲突判定。
	ExistingNames map[string]struct{}
}

// MovePlan 规划一次归档移动（只描述 src/dst；真正执行必须遵守“移动最后一步”）。
type MovePlan struct {
	SrcIdx      int // duplicate 的文件下标
	OriginalIdx int // 对应 canonical 的文件下标
	SrcAbs      string
	DstAbs      string
	SidecarName string // 归档目录内的信息文件名（dst 文件名 + ".txt"）
}

// GroupPlan 是一个重复组的最小执行计划（canonical 不产生任何移动）。
type GroupPlan struct {
	Canonical int
	Moves     []MovePlan
}

// ArchiveRecord 是一次归档移动的对外记录（每个被归档文件一条）。
type ArchiveRecord struct {
	Src        string    `json:"src"`      // duplicate 的相对路径（相对扫描根）
	Original   string    `json:"original"` // canonical 的相对路径
	Dst        string    `json:"dst"`      // 归档后的绝对路径
	ArchivedAt time.Time `json:"archived_at"`
	Status     string    `json:"status"` // planned | moved | failed
	ErrorCode  string    `json:"error_code"`
	ErrorMsg   string    `json:"error_msg"`
}

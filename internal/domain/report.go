package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	ArchiveStatusPlanned = "planned"
	ArchiveStatusMoved   = "moved"
	ArchiveStatusFailed  = "failed"
)

const (
	ErrCodeDecodeFailed      = "decode_failed"
	ErrCodeEmptySignature    = "empty_signature"
	ErrCodeInsufficientData  = "insufficient_data"
	ErrCodeMoveFailed        = "move_failed"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// Failure 是单个资产（或单个资产对）级别的处理失败。
// 失败只影响自身：一个坏文件绝不能阻止其余文件的处理。
type Failure struct {
	Path      string `json:"path"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// GroupResult 是 DuplicateGroup 的对外表示（相对路径，稳定排序）。
type GroupResult struct {
	Original string   `json:"original"`
	Members  []string `json:"members"` // 含 original；按相对路径字典序
	Size     int      `json:"size"`
}

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
//
// 语义约定：groups 为空且 failures 为空 = “没有重复”；
// failures 非空 = “处理不完整”。调用方必须能区分这两种情况。
type RunReport struct {
	RunID      string  `json:"run_id"`
	Path       string  `json:"path"`
	ArchiveDir string  `json:"archive_dir"`
	DryRun     bool    `json:"dry_run"`
	Threshold  float64 `json:"threshold"`
	SampleRate float64 `json:"sample_rate"`
	HashAlgo   string  `json:"hash_algo"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary   `json:"summary"`
	Groups   []GroupResult   `json:"groups"`
	Archives []ArchiveRecord `json:"archives"`
	Failures []Failure       `json:"failures"`
}

type ReportSummary struct {
	Scanned  int `json:"scanned"`
	Built    int `json:"built"`
	Compared int `json:"compared"`
	Groups   int `json:"groups"`
	Planned  int `json:"planned"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) groups/archives/failures 稳定排序，消除并发带来的顺序差异
// 3) summary 的派生字段由列表计算得出（Scanned/Built/Compared 由上层填写）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Groups == nil {
		r.Groups = []GroupResult{}
	}
	if r.Archives == nil {
		r.Archives = []ArchiveRecord{}
	}
	if r.Failures == nil {
		r.Failures = []Failure{}
	}

	sort.SliceStable(r.Groups, func(i, j int) bool { return r.Groups[i].Original < r.Groups[j].Original })
	for i := range r.Groups {
		sort.Strings(r.Groups[i].Members)
		r.Groups[i].Size = len(r.Groups[i].Members)
	}
	sort.SliceStable(r.Archives, func(i, j int) bool { return r.Archives[i].Src < r.Archives[j].Src })
	for i := range r.Archives {
		r.Archives[i].ArchivedAt = r.Archives[i].ArchivedAt.UTC()
	}
	sort.SliceStable(r.Failures, func(i, j int) bool {
		if r.Failures[i].Path != r.Failures[j].Path {
			return r.Failures[i].Path < r.Failures[j].Path
		}
		return r.Failures[i].ErrorCode < r.Failures[j].ErrorCode
	})

	r.Summary.Groups = len(r.Groups)
	r.Summary.Failed = len(r.Failures)
	var planned, archived int
	for _, a := range r.Archives {
		switch a.Status {
		case ArchiveStatusPlanned:
			planned++
		case ArchiveStatusMoved:
			planned++
			archived++
		case ArchiveStatusFailed:
			planned++
		}
	}
	r.Summary.Planned = planned
	r.Summary.Archived = archived
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}

package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRunReportFinalize_StableOrderAndSummary(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	rr := RunReport{
		StartedAt:  time.Date(2026, 8, 1, 20, 0, 0, 0, loc),
		FinishedAt: time.Date(2026, 8, 1, 20, 5, 0, 0, loc),
		Groups: []GroupResult{
			{Original: "b/v.mp4", Members: []string{"b/v.mp4", "a/v.mp4"}},
			{Original: "a/u.mp4", Members: []string{"c/u.mp4", "a/u.mp4"}},
		},
		Archives: []ArchiveRecord{
			{Src: "z.mp4", Status: ArchiveStatusMoved, ArchivedAt: time.Date(2026, 8, 1, 20, 1, 0, 0, loc)},
			{Src: "a.mp4", Status: ArchiveStatusFailed},
			{Src: "m.mp4", Status: ArchiveStatusPlanned},
		},
		Failures: []Failure{
			{Path: "b.mp4", ErrorCode: ErrCodeIOFailed},
			{Path: "a.mp4", ErrorCode: ErrCodeDecodeFailed},
			{Path: "a.mp4", ErrorCode: ErrCodeEmptySignature},
		},
	}

	rr.Finalize()

	if rr.StartedAt.Location() != time.UTC || rr.FinishedAt.Location() != time.UTC {
		t.Fatalf("时间未统一为 UTC")
	}
	if rr.Archives[0].Src != "a.mp4" || rr.Archives[2].Src != "z.mp4" {
		t.Fatalf("archives 未按 Src 排序：%v", rr.Archives)
	}
	if rr.Archives[2].ArchivedAt.Location() != time.UTC {
		t.Fatalf("ArchivedAt 未统一为 UTC")
	}
	if rr.Groups[0].Original != "a/u.mp4" {
		t.Fatalf("groups 未按 Original 排序：%v", rr.Groups)
	}
	if rr.Groups[0].Members[0] != "a/u.mp4" || rr.Groups[0].Members[1] != "c/u.mp4" {
		t.Fatalf("组内成员未排序：%v", rr.Groups[0].Members)
	}
	if rr.Groups[0].Size != 2 {
		t.Fatalf("Size 应由成员数派生：%d", rr.Groups[0].Size)
	}
	if rr.Failures[0].Path != "a.mp4" || rr.Failures[0].ErrorCode != ErrCodeDecodeFailed {
		t.Fatalf("failures 未按 (Path, ErrorCode) 排序：%v", rr.Failures)
	}

	if rr.Summary.Groups != 2 {
		t.Fatalf("Summary.Groups 错误：%d", rr.Summary.Groups)
	}
	if rr.Summary.Planned != 3 {
		t.Fatalf("Summary.Planned 错误：%d", rr.Summary.Planned)
	}
	if rr.Summary.Archived != 1 {
		t.Fatalf("Summary.Archived 错误：%d", rr.Summary.Archived)
	}
	if rr.Summary.Failed != 3 {
		t.Fatalf("Summary.Failed 错误：%d", rr.Summary.Failed)
	}
}

func TestRunReportFinalize_NilSlicesBecomeEmpty(t *testing.T) {
	rr := RunReport{StartedAt: time.Now(), FinishedAt: time.Now()}
	rr.Finalize()

	b, err := json.Marshal(rr)
	if err != nil {
		t.Fatalf("marshal 失败：%v", err)
	}
	s := string(b)
	// nil 切片会序列化成 null；对外契约要求是空数组。
	for _, key := range []string{`"groups":[]`, `"archives":[]`, `"failures":[]`} {
		if !strings.Contains(s, key) {
			t.Fatalf("期望 %s，实际输出：%s", key, s)
		}
	}
	// RFC3339 + Z 后缀。
	if !strings.Contains(s, `Z"`) {
		t.Fatalf("时间戳应为 UTC（Z 后缀）：%s", s)
	}
}

func TestSignatureTimestampAt(t *testing.T) {
	s := Signature{SampleRate: 2}
	if got := s.TimestampAt(0); got != 0 {
		t.Fatalf("第 0 帧时间戳应为 0：%g", got)
	}
	if got := s.TimestampAt(3); got != 1.5 {
		t.Fatalf("2 fps 第 3 帧时间戳应为 1.5：%g", got)
	}
}

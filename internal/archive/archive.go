package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/John-Robertt/VDAC/internal/domain"
	"github.com/John-Robertt/VDAC/internal/infra/fsx"
)

// RelocationError 表示单个文件归档失败（权限/跨盘/源文件消失等）。
// 只影响该文件：批次内其余移动必须继续——部分成功是预期结果，逐条上报。
type RelocationError struct {
	Src string
	Dst string
	Err error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("归档移动失败：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

// IsRelocation 判断 err 是否为归档移动失败。
func IsRelocation(err error) bool {
	var e *RelocationError
	return errors.As(err, &e)
}

// nowFunc 可替换，让测试得到确定的时间戳。
var nowFunc = func() time.Time { return time.Now().UTC() }

// Execute 执行归档移动：整个流水线里唯一的状态变更、不可逆操作。
//
// 约束（硬）：
// - 必须在所有组解析定型之后运行（比较/解析逻辑绝不能看到半归档的集合）
// - canonical 成员绝不移动
// - 单条失败只记一条 failed 记录，继续执行其余移动
// - 移动成功后在归档文件旁写信息 sidecar（原件路径 + 归档时间）；
//   sidecar 写失败降级为 io_failed 失败项，但移动记录保持 moved
//
// 取消语义：每条移动开始前检查 ctx；已开始的移动让它跑完或干净失败。
func Execute(ctx context.Context, files []domain.VideoFile, plans []domain.GroupPlan, archiveDir string) ([]domain.ArchiveRecord, []domain.Failure) {
	records := make([]domain.ArchiveRecord, 0, len(plans))
	failures := make([]domain.Failure, 0, 4)

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		// 目录都建不出来：所有计划中的移动都失败，但仍逐条记录（可解释性）。
		for _, p := range plans {
			for _, mv := range p.Moves {
				records = append(records, failedRecord(files, mv, domain.ErrCodeIOFailed, err.Error()))
				failures = append(failures, domain.Failure{
					Path:      files[mv.SrcIdx].RelPath,
					ErrorCode: domain.ErrCodeIOFailed,
					ErrorMsg:  fmt.Sprintf("创建归档目录失败：%v", err),
				})
			}
		}
		return records, failures
	}

	for _, p := range plans {
		for _, mv := range p.Moves {
			if err := ctx.Err(); err != nil {
				records = append(records, failedRecord(files, mv, domain.ErrCodeMoveFailed, err.Error()))
				failures = append(failures, domain.Failure{
					Path:      files[mv.SrcIdx].RelPath,
					ErrorCode: domain.ErrCodeMoveFailed,
					ErrorMsg:  fmt.Sprintf("归档前已取消：%v", err),
				})
				continue
			}

			if err := fsx.Rename(mv.SrcAbs, mv.DstAbs); err != nil {
				rerr := &RelocationError{Src: mv.SrcAbs, Dst: mv.DstAbs, Err: err}
				records = append(records, failedRecord(files, mv, domain.ErrCodeMoveFailed, rerr.Error()))
				failures = append(failures, domain.Failure{
					Path:      files[mv.SrcIdx].RelPath,
					ErrorCode: domain.ErrCodeMoveFailed,
					ErrorMsg:  rerr.Error(),
				})
				continue
			}

			now := nowFunc()
			records = append(records, domain.ArchiveRecord{
				Src:        files[mv.SrcIdx].RelPath,
				Original:   files[mv.OriginalIdx].RelPath,
				Dst:        mv.DstAbs,
				ArchivedAt: now,
				Status:     domain.ArchiveStatusMoved,
			})

			if err := writeSidecar(archiveDir, mv, files, now); err != nil {
				failures = append(failures, domain.Failure{
					Path:      files[mv.SrcIdx].RelPath,
					ErrorCode: domain.ErrCodeIOFailed,
					ErrorMsg:  fmt.Sprintf("写入归档信息文件失败：%v", err),
				})
			}
		}
	}

	return records, failures
}

// writeSidecar 在归档文件旁写一份人可读的信息文件（原件在哪、何时归档）。
func writeSidecar(archiveDir string, mv domain.MovePlan, files []domain.VideoFile, now time.Time) error {
	body := fmt.Sprintf("Original file: %s\nArchived on: %s\n",
		files[mv.OriginalIdx].AbsPath,
		now.UTC().Format("2006-01-02 15:04:05"),
	)
	err := fsx.WriteFileAtomicNoOverwrite(archiveDir, mv.SidecarName, []byte(body))
	if errors.Is(err, os.ErrExist) {
		// 计划阶段已预占名字；真撞上只可能是外部并发写，视为已满足。
		return nil
	}
	return err
}

func failedRecord(files []domain.VideoFile, mv domain.MovePlan, code, msg string) domain.ArchiveRecord {
	return domain.ArchiveRecord{
		Src:        files[mv.SrcIdx].RelPath,
		Original:   files[mv.OriginalIdx].RelPath,
		Dst:        mv.DstAbs,
		ArchivedAt: nowFunc(),
		Status:     domain.ArchiveStatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
	}
}

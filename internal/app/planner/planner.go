package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/VDAC/internal/domain"
)

// ReadArchiveState 读取归档目录的现状（只做 ReadDir，不读文件内容）。
// 若目录不存在，返回空状态且不报错（执行阶段才创建目录）。
func ReadArchiveState(archiveDir string) (domain.ArchiveState, error) {
	st := domain.ArchiveState{
		Dir:           filepath.Clean(archiveDir),
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.ArchiveState{}, err
	}

	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanGroups 为每个重复组的非 canonical 成员生成确定性的归档移动计划
// （不做任何写入/移动）。
//
// 命名规则：
// - 尽量保留原文件名（含扩展名大小写）
// - 与目录现有文件或本次 run 内已分配的名字冲突时，追加 __2、__3…
// - 每条移动同时预占信息 sidecar 的名字（<目标名>.txt），避免 sidecar 互撞
func PlanGroups(files []domain.VideoFile, groups []domain.DuplicateGroup, st domain.ArchiveState) ([]domain.GroupPlan, error) {
	used := make(map[string]struct{}, len(st.ExistingNames)+len(groups)*2)
	for n := range st.ExistingNames {
		used[n] = struct{}{}
	}

	plans := make([]domain.GroupPlan, 0, len(groups))
	for _, g := range groups {
		moves := make([]domain.MovePlan, 0, len(g.Members)-1)
		for _, idx := range g.Members {
			if idx < 0 || idx >= len(files) {
				return nil, fmt.Errorf("非法 file index：%d", idx)
			}
			if idx == g.Canonical {
				// canonical 保留原位，永远不产生移动。
				continue
			}

			srcAbs := files[idx].AbsPath
			name := filepath.Base(srcAbs)
			dstName := allocName(name, used)
			used[dstName] = struct{}{}

			sidecar := dstName + ".txt"
			sidecar = allocName(sidecar, used)
			used[sidecar] = struct{}{}

			moves = append(moves, domain.MovePlan{
				SrcIdx:      idx,
				OriginalIdx: g.Canonical,
				SrcAbs:      srcAbs,
				DstAbs:      filepath.Join(st.Dir, dstName),
				SidecarName: sidecar,
			})
		}
		plans = append(plans, domain.GroupPlan{
			Canonical: g.Canonical,
			Moves:     moves,
		})
	}
	return plans, nil
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", base, n, ext)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}

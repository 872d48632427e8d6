package resolve

import (
	"sort"

	"github.com/John-Robertt/VDAC/internal/domain"
)

// CanonicalPolicy 从连通分量成员中选出保留原位的“原件”。
//
// 约束：纯函数、确定性——同一输入图重跑必须选出同一个成员。
// members 已按下标升序；返回值必须是 members 中的某个下标。
type CanonicalPolicy func(members []int, files []domain.VideoFile) int

// LargestFile 是默认策略：文件最大者优先（“更大”通常意味着更完整/更高码率）；
// 并列取发现顺序最早（下标最小）；再并列取 RelPath 字典序最小。
//
// 这是经验选择而非正确性要求：需要其他策略的调用方自行替换 CanonicalPolicy。
func LargestFile(members []int, files []domain.VideoFile) int {
	// members 按下标升序遍历，只有严格更大才翻盘：
	// 并列时自然留下下标最小者（即发现顺序最早；扫描输出按 RelPath 排序，
	// 因此这同时就是 RelPath 字典序最小者）。
	best := members[0]
	for _, m := range members[1:] {
		if files[m].Size > files[best].Size {
			best = m
		}
	}
	return best
}

// Groups 把重复判定边解析为互不相交的重复组。
//
// - n 是资产总数；results 里只有 Duplicate=true 的边参与建图
// - 连通分量 size ≥ 2 才成组；孤立资产不出现在任何组（也永远不会被归档）
// - 输出稳定：组按 canonical 的 RelPath 排序，组内成员按下标升序
// - pick 为 nil 时使用 LargestFile
func Groups(n int, results []domain.ComparisonResult, files []domain.VideoFile, pick CanonicalPolicy) []domain.DuplicateGroup {
	if pick == nil {
		pick = LargestFile
	}

	uf := newUnionFind(n)
	for _, r := range results {
		if r.Duplicate {
			uf.union(r.I, r.J)
		}
	}

	byRoot := make(map[int][]int, 16)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	groups := make([]domain.DuplicateGroup, 0, len(byRoot))
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)
		groups = append(groups, domain.DuplicateGroup{
			Canonical: pick(members, files),
			Members:   members,
		})
	}

	// map 遍历顺序不确定：按 canonical 的 RelPath 强制稳定输出。
	sort.Slice(groups, func(i, j int) bool {
		return files[groups[i].Canonical].RelPath < files[groups[j].Canonical].RelPath
	})
	return groups
}

// unionFind 是带路径压缩 + 按秩合并的并查集。
// 节点规模是资产数（而不是帧数），建图成本相对前两个阶段可以忽略。
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

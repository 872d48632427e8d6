package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/VDAC/internal/app/planner"
	"github.com/John-Robertt/VDAC/internal/archive"
	"github.com/John-Robertt/VDAC/internal/compare"
	"github.com/John-Robertt/VDAC/internal/config"
	"github.com/John-Robertt/VDAC/internal/domain"
	"github.com/John-Robertt/VDAC/internal/media"
	"github.com/John-Robertt/VDAC/internal/resolve"
	"github.com/John-Robertt/VDAC/internal/scan"
	"github.com/John-Robertt/VDAC/internal/sig"
)

// SignatureBuilder 是 run 层对签名构建的最小依赖（sig.Builder 天然满足）。
// 抽出接口是为了让 e2e 测试能注入假构建器，不依赖 ffmpeg 二进制。
type SignatureBuilder interface {
	Build(ctx context.Context, f domain.VideoFile) (domain.Signature, error)
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为资产/对级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, b SignatureBuilder) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, b, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息
// （由上层决定是否启用）。
//
// 阶段与同步模型：
//  1. scan    只做 stat，稳定排序
//  2. build   按资产并发（worker pool），阶段末尾是一道 barrier：
//             比较阶段只消费已全部完成的签名
//  3. compare 按资产对并发（errgroup 限流）；只读归约，无需加锁
//  4. resolve 单线程（建图相对前两阶段可以忽略不计）
//  5. plan    纯计划，不落盘
//  6. archive 仅 apply；唯一的状态变更阶段，永远放最后
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, b SignatureBuilder, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Path:       eff.Path,
		ArchiveDir: eff.ArchiveDir,
		DryRun:     !eff.Apply,
		Threshold:  eff.Threshold,
		SampleRate: eff.SampleRate,
		HashAlgo:   eff.HashAlgo,
		StartedAt:  started,
		Failures:   make([]domain.Failure, 0, 8),
	}

	// ---- scan ----
	scanStarted := time.Now()
	files, err := scan.ScanVideos(eff.Path, eff.ArchiveDir, eff.ExcludeDirs)
	if err != nil {
		rr.Failures = append(rr.Failures, domain.Failure{
			Path:      eff.Path,
			ErrorCode: domain.ErrCodeIOFailed,
			ErrorMsg:  fmt.Sprintf("扫描失败：%v", err),
		})
		return finish(&rr)
	}
	rr.Summary.Scanned = len(files)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}

	// ---- build（worker pool + barrier）----
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	if obs != nil {
		obs.OnPhaseDone("build", map[string]any{
			"workers":      workers,
			"total_videos": len(files),
		}, 0)
	}

	buildStarted := time.Now()
	sigs, built := buildAll(ctx, eff, b, files, workers, &rr, obs)
	rr.Summary.Built = built

	if obs != nil {
		obs.OnPhaseDone("build_done", map[string]any{
			"built":  built,
			"failed": len(files) - built,
		}, time.Since(buildStarted))
	}

	// ---- compare（只读归约，对级并发）----
	compareStarted := time.Now()
	results, compared := compareAll(ctx, eff, files, sigs, workers, &rr)
	rr.Summary.Compared = compared

	if obs != nil {
		obs.OnPhaseDone("compare", map[string]any{
			"pairs":  compared,
			"edges":  countDuplicates(results),
			"failed": 0,
		}, time.Since(compareStarted))
	}

	// ---- resolve（单线程；必须先于任何归档）----
	resolveStarted := time.Now()
	groups := resolve.Groups(len(files), results, files, nil)
	rr.Groups = groupResults(files, groups)

	if obs != nil {
		obs.OnPhaseDone("resolve", map[string]any{"groups": len(groups)}, time.Since(resolveStarted))
	}

	// ---- plan ----
	st, err := planner.ReadArchiveState(eff.ArchiveDir)
	if err != nil {
		rr.Failures = append(rr.Failures, domain.Failure{
			Path:      eff.ArchiveDir,
			ErrorCode: domain.ErrCodeIOFailed,
			ErrorMsg:  fmt.Sprintf("读取归档目录状态失败：%v", err),
		})
		return finish(&rr)
	}
	plans, err := planner.PlanGroups(files, groups, st)
	if err != nil {
		rr.Failures = append(rr.Failures, domain.Failure{
			Path:      eff.ArchiveDir,
			ErrorCode: domain.ErrCodeIOFailed,
			ErrorMsg:  fmt.Sprintf("规划归档移动失败：%v", err),
		})
		return finish(&rr)
	}

	totalMoves := 0
	for _, p := range plans {
		totalMoves += len(p.Moves)
	}
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{"moves": totalMoves}, 0)
	}

	// dry-run：到此为止，只报告计划，不动任何文件。
	if !eff.Apply {
		rr.Archives = plannedRecords(files, plans)
		return finish(&rr)
	}

	// ---- archive（唯一状态变更阶段，移动最后一步）----
	archiveStarted := time.Now()
	records, failures := archive.Execute(ctx, files, plans, eff.ArchiveDir)
	rr.Archives = records
	rr.Failures = append(rr.Failures, failures...)

	if obs != nil {
		moved := 0
		for _, r := range records {
			if r.Status == domain.ArchiveStatusMoved {
				moved++
			}
		}
		obs.OnPhaseDone("archive", map[string]any{
			"moved":  moved,
			"failed": len(records) - moved,
		}, time.Since(archiveStarted))
	}

	return finish(&rr)
}

// buildAll 用 worker pool 为每个文件构建签名。
// 失败以成功/失败二相结果收集（不是异常中断），单条失败绝不影响兄弟任务。
func buildAll(ctx context.Context, eff config.EffectiveConfig, b SignatureBuilder, files []domain.VideoFile, workers int, rr *domain.RunReport, obs Observer) (sigs []domain.Signature, built int) {
	sigs = make([]domain.Signature, len(files))
	ok := make([]bool, len(files))

	type buildResult struct {
		idx int
		sig domain.Signature
		err error
		dur time.Duration
	}

	jobs := make(chan int)
	results := make(chan buildResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				oneStarted := time.Now()
				s, err := b.Build(ctx, files[idx])
				results <- buildResult{idx: idx, sig: s, err: err, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for idx := range files {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		done++
		errCode := ""
		if r.err != nil {
			errCode = buildErrorCode(r.err)
			rr.Failures = append(rr.Failures, domain.Failure{
				Path:      files[r.idx].RelPath,
				ErrorCode: errCode,
				ErrorMsg:  r.err.Error(),
			})
		} else {
			sigs[r.idx] = r.sig
			ok[r.idx] = true
			built++
		}
		if obs != nil {
			obs.OnItemDone(done, len(files), files[r.idx].RelPath, errCode, r.dur)
		}
	}

	// 构建失败的槽位留空签名；compareAll 只遍历 ok 的下标。
	for i := range sigs {
		if !ok[i] {
			sigs[i] = domain.Signature{}
		}
	}
	return sigs, built
}

func buildErrorCode(err error) string {
	switch {
	case media.IsDecodeError(err):
		return domain.ErrCodeDecodeFailed
	case sig.IsEmptySignature(err):
		return domain.ErrCodeEmptySignature
	default:
		return domain.ErrCodeIOFailed
	}
}

// compareAll 枚举成功构建的签名的全部无序对（i<j；自比较从不进入枚举），
// 经预过滤后并发比较。所有签名在 barrier 之后只读，无需加锁。
func compareAll(ctx context.Context, eff config.EffectiveConfig, files []domain.VideoFile, sigs []domain.Signature, workers int, rr *domain.RunReport) (results []domain.ComparisonResult, compared int) {
	idxs := make([]int, 0, len(sigs))
	for i := range sigs {
		if len(sigs[i].Fingerprints) > 0 {
			idxs = append(idxs, i)
		}
	}

	type pair struct{ i, j int }
	pairs := make([]pair, 0, len(idxs)*(len(idxs)-1)/2)
	for a := 0; a < len(idxs); a++ {
		for b := a + 1; b < len(idxs); b++ {
			i, j := idxs[a], idxs[b]
			if !compare.ShouldCompare(sigs[i], sigs[j], eff.DurationToleranceSec) {
				continue
			}
			pairs = append(pairs, pair{i: i, j: j})
		}
	}

	type pairResult struct {
		i, j int
		res  compare.Result
		err  error
	}

	out := make(chan pairResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, pr := range pairs {
		pr := pr
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := compare.Compare(sigs[pr.i], sigs[pr.j], eff.Threshold)
			out <- pairResult{i: pr.i, j: pr.j, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(out)

	results = make([]domain.ComparisonResult, 0, len(pairs))
	for r := range out {
		if r.err != nil {
			// 数据不足：该对按非重复处理并上报，不中止 run。
			rr.Failures = append(rr.Failures, domain.Failure{
				Path:      files[r.i].RelPath + " <-> " + files[r.j].RelPath,
				ErrorCode: domain.ErrCodeInsufficientData,
				ErrorMsg:  r.err.Error(),
			})
			continue
		}
		compared++
		results = append(results, domain.ComparisonResult{
			I:         r.i,
			J:         r.j,
			Score:     r.res.Score,
			Duplicate: r.res.Duplicate,
		})
	}
	return results, compared
}

func countDuplicates(results []domain.ComparisonResult) int {
	n := 0
	for _, r := range results {
		if r.Duplicate {
			n++
		}
	}
	return n
}

func groupResults(files []domain.VideoFile, groups []domain.DuplicateGroup) []domain.GroupResult {
	out := make([]domain.GroupResult, 0, len(groups))
	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, files[m].RelPath)
		}
		out = append(out, domain.GroupResult{
			Original: files[g.Canonical].RelPath,
			Members:  members,
			Size:     len(members),
		})
	}
	return out
}

func plannedRecords(files []domain.VideoFile, plans []domain.GroupPlan) []domain.ArchiveRecord {
	out := make([]domain.ArchiveRecord, 0, len(plans))
	for _, p := range plans {
		for _, mv := range p.Moves {
			out = append(out, domain.ArchiveRecord{
				Src:      files[mv.SrcIdx].RelPath,
				Original: files[mv.OriginalIdx].RelPath,
				Dst:      mv.DstAbs,
				Status:   domain.ArchiveStatusPlanned,
			})
		}
	}
	return out
}

func finish(rr *domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return *rr
}

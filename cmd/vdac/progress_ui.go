package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/John-Robertt/VDAC/internal/app/run"
	"github.com/John-Robertt/VDAC/internal/config"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行（解码大文件可能很久），降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只检测与规划，不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] VDAC run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  threshold: %g\n", eff.Threshold)
	fmt.Fprintf(p.w, "  sample_rate: %g fps\n", eff.SampleRate)
	fmt.Fprintf(p.w, "  hash_algo: %s\n", eff.HashAlgo)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	if eff.DurationToleranceSec > 0 {
		fmt.Fprintf(p.w, "  duration_tolerance_sec: %g\n", eff.DurationToleranceSec)
	}
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 archive/, cache/\n", formatStringListJSON(eff.ExcludeDirs))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  archive: %s\n", eff.ArchiveDir)
	if eff.Apply {
		fmt.Fprintf(p.w, "  report: %s\n", eff.Path+"/cache/report.json")
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "build":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_videos")
		fmt.Fprintf(p.w, "签名: workers=%d total_videos=%d\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "build_done":
		fmt.Fprintf(p.w, "签名完成: built=%d failed=%d (%s)\n",
			intField(fields, "built"), intField(fields, "failed"), formatShortDuration(dur),
		)
	case "compare":
		fmt.Fprintf(p.w, "比较: pairs=%d edges=%d (%s)\n",
			intField(fields, "pairs"), intField(fields, "edges"), formatShortDuration(dur),
		)
	case "resolve":
		fmt.Fprintf(p.w, "分组: groups=%d (%s)\n", intField(fields, "groups"), formatShortDuration(dur))
	case "plan":
		fmt.Fprintf(p.w, "规划: moves=%d\n", intField(fields, "moves"))
	case "archive":
		fmt.Fprintf(p.w, "归档: moved=%d failed=%d (%s)\n",
			intField(fields, "moved"), intField(fields, "failed"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, rel string, errCode string, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	if errCode == "" {
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK (%s)\n", idx, total, rel, formatShortDuration(dur))
	} else {
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s (%s)\n", idx, total, rel, errCode, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, active int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d active=%d elapsed=%s\n",
		done, total, ok, fail, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					remain := p.total - p.done
					if remain < active {
						active = remain
					}
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d active=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, active, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}

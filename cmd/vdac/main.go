package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/VDAC/internal/app/run"
	"github.com/John-Robertt/VDAC/internal/config"
	"github.com/John-Robertt/VDAC/internal/domain"
	"github.com/John-Robertt/VDAC/internal/infra/fsx"
	"github.com/John-Robertt/VDAC/internal/sig"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:          ra.Path,
		Threshold:     ra.Threshold,
		ThresholdSet:  ra.ThresholdSet,
		SampleRate:    ra.SampleRate,
		SampleRateSet: ra.SampleRateSet,
		Apply:         ra.Apply,
		ApplySet:      ra.ApplySet,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, ra, err)
		emitReport(rr)
		return 1
	}

	builder := sig.Builder{
		Rate:  eff.SampleRate,
		Algo:  eff.HashAlgo,
		Cache: sig.NewStore(eff.Path, !eff.Apply),
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, builder, obs)

	// apply：必须写入 <path>/cache/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.Path, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Path          string
	Threshold     float64
	ThresholdSet  bool
	SampleRate    float64
	SampleRateSet bool
	Apply         bool
	ApplySet      bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--threshold":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--threshold 需要一个值")
			}
			i++
			v, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				return runArgs{}, fmt.Errorf("--threshold 必须是数字，实际是 %q", args[i])
			}
			ra.Threshold = v
			ra.ThresholdSet = true
		case strings.HasPrefix(a, "--threshold="):
			v, err := strconv.ParseFloat(strings.TrimPrefix(a, "--threshold="), 64)
			if err != nil {
				return runArgs{}, fmt.Errorf("--threshold 必须是数字，实际是 %q", a)
			}
			ra.Threshold = v
			ra.ThresholdSet = true
		case a == "--sample-rate":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--sample-rate 需要一个值")
			}
			i++
			v, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				return runArgs{}, fmt.Errorf("--sample-rate 必须是数字，实际是 %q", args[i])
			}
			ra.SampleRate = v
			ra.SampleRateSet = true
		case strings.HasPrefix(a, "--sample-rate="):
			v, err := strconv.ParseFloat(strings.TrimPrefix(a, "--sample-rate="), 64)
			if err != nil {
				return runArgs{}, fmt.Errorf("--sample-rate 必须是数字，实际是 %q", a)
			}
			ra.SampleRate = v
			ra.SampleRateSet = true
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return runArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vdac run [path] [--threshold 0.95] [--sample-rate 1] [--apply[=true|false]]

命令：
  run    扫描并检测重复视频（默认 dry-run，只报告不移动）

使用 "vdac run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vdac run [path] [--threshold 0.95] [--sample-rate 1] [--apply[=true|false]]

参数：
  --threshold    相似度判定阈值，范围 (0,1]（默认 0.95）
  --sample-rate  每秒采样帧数，必须 ≥ 1（默认 1；高于源帧率时自动钳制）
  --apply        执行归档移动（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  -h, --help     显示帮助

说明：
  重复组内保留一个“原件”（默认取文件最大者）原地不动，其余成员移动到
  归档目录（默认 <path>/archive，可用 vdac.json 的 archive_dir 覆盖）。
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：scanned=%d built=%d compared=%d groups=%d archived=%d failed=%d\n",
			rr.Summary.Scanned, rr.Summary.Built, rr.Summary.Compared,
			rr.Summary.Groups, rr.Summary.Archived, rr.Summary.Failed,
		)
		for _, g := range rr.Groups {
			fmt.Fprintf(os.Stdout, "重复组（原件 %s）：%s\n", g.Original, strings.Join(g.Members, ", "))
		}
		if rr.Summary.Failed > 0 {
			for _, f := range rr.Failures {
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", f.Path, f.ErrorCode, f.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：scanned=%d built=%d compared=%d groups=%d archived=%d failed=%d\n",
		rr.Summary.Scanned, rr.Summary.Built, rr.Summary.Compared,
		rr.Summary.Groups, rr.Summary.Archived, rr.Summary.Failed,
	)
}

func reportForConfigError(cwdAbs string, ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(ra.ApplySet && ra.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Failures: []domain.Failure{{
			Path:      cwdAbs,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	fmt.Fprintf(w, "archive: %s\n", eff.ArchiveDir)
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, "cache", "report.json"))
	}
}

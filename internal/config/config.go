package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 vdac.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// DefaultThreshold 是相似度判定阈值的默认值，范围 (0,1]。
	DefaultThreshold = 0.95
	// DefaultSampleRate 是采样率默认值（每秒取 1 帧做指纹）。
	DefaultSampleRate = 1.0
	// DefaultHashAlgo 是帧指纹算法默认值。
	DefaultHashAlgo = "ahash"
	// DefaultConcurrency 是并发的内置默认值（当配置未指定时）。
	DefaultConcurrency = 4
)

// CLIArgs 只包含 CLI 暴露的入口（path/threshold/sample-rate/apply），
// 并保留“是否显式指定”的信息。这能保证覆盖优先级可实现：
// 例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Threshold    float64
	ThresholdSet bool

	SampleRate    float64
	SampleRateSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 vdac.json 的解析结构。
type FileConfig struct {
	Path                 string   `json:"path"`
	ArchiveDir           string   `json:"archive_dir"`
	Threshold            *float64 `json:"threshold"`
	SampleRate           *float64 `json:"sample_rate"`
	HashAlgo             string   `json:"hash_algo"`
	Apply                *bool    `json:"apply"`
	Concurrency          int      `json:"concurrency"`
	DurationToleranceSec float64  `json:"duration_tolerance_sec"`
	ExcludeDirs          []string `json:"exclude_dirs"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path       string
	ArchiveDir string

	Threshold  float64
	SampleRate float64
	HashAlgo   string
	Apply      bool

	Concurrency int

	// DurationToleranceSec 控制比较前的时长预过滤：0 关闭（保守默认，全部比较）。
	// 只允许跳过“时长差超过容忍值”的对——这是便宜的必要条件，不产生假阴性。
	DurationToleranceSec float64

	ExcludeDirs []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
// 配置错误是整个 run 唯一的致命错误：在任何处理开始前报告。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置无效：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按文档约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/vdac.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/vdac.json（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - threshold / sample_rate / apply：CLI > config > 默认
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/vdac.json。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, "vdac.json")

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	// CLI 没给 path：必须读取 <cwd>/vdac.json，且其中必须包含 path。
	cfgPath := filepath.Join(cwdAbs, "vdac.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// threshold：CLI > config > 默认；范围 (0,1]，越界即致命。
	threshold := DefaultThreshold
	if cli.ThresholdSet {
		threshold = cli.Threshold
	} else if fc.Threshold != nil {
		threshold = *fc.Threshold
	}
	if threshold <= 0 || threshold > 1 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("threshold 必须在 (0,1] 内，实际是 %v", threshold)}
	}

	// sample_rate：CLI > config > 默认；必须 ≥ 1（高于源帧率的部分在采样时 clamp）。
	sampleRate := DefaultSampleRate
	if cli.SampleRateSet {
		sampleRate = cli.SampleRate
	} else if fc.SampleRate != nil {
		sampleRate = *fc.SampleRate
	}
	if sampleRate < 1 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("sample_rate 必须 ≥ 1，实际是 %v", sampleRate)}
	}

	hashAlgo := strings.ToLower(strings.TrimSpace(fc.HashAlgo))
	if hashAlgo == "" {
		hashAlgo = DefaultHashAlgo
	}
	switch hashAlgo {
	case "ahash", "phash", "dhash":
		// ok
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("hash_algo 只能是 ahash/phash/dhash，实际是 %q", hashAlgo)}
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 文档约定：范围建议 [1, 32]；超出截断。
	// 解码吞吐才是瓶颈，池必须有界，而不是按资产数无限扇出。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	if fc.DurationToleranceSec < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("duration_tolerance_sec 不能为负，实际是 %v", fc.DurationToleranceSec)}
	}

	archiveDir := strings.TrimSpace(fc.ArchiveDir)
	if archiveDir == "" {
		archiveDir = filepath.Join(absPath, "archive")
	} else {
		archiveDir = absCleanFrom(absPath, archiveDir)
	}

	return EffectiveConfig{
		Path:                 absPath,
		ArchiveDir:           archiveDir,
		Threshold:            threshold,
		SampleRate:           sampleRate,
		HashAlgo:             hashAlgo,
		Apply:                apply,
		Concurrency:          concurrency,
		DurationToleranceSec: fc.DurationToleranceSec,
		ExcludeDirs:          append([]string(nil), fc.ExcludeDirs...),
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

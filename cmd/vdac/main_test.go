package main

import (
	"errors"
	"testing"

	"github.com/John-Robertt/VDAC/internal/config"
	"github.com/John-Robertt/VDAC/internal/domain"
)

func TestParseRunArgs_Full(t *testing.T) {
	ra, err := parseRunArgs([]string{"--threshold", "0.9", "--sample-rate=2", "--apply", "/videos"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ra.Path != "/videos" {
		t.Fatalf("path 错误：%q", ra.Path)
	}
	if !ra.ThresholdSet || ra.Threshold != 0.9 {
		t.Fatalf("threshold 解析错误：%+v", ra)
	}
	if !ra.SampleRateSet || ra.SampleRate != 2 {
		t.Fatalf("sample-rate 解析错误：%+v", ra)
	}
	if !ra.ApplySet || !ra.Apply {
		t.Fatalf("apply 解析错误：%+v", ra)
	}
}

func TestParseRunArgs_Defaults(t *testing.T) {
	ra, err := parseRunArgs(nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ra.ThresholdSet || ra.SampleRateSet || ra.ApplySet || ra.Path != "" {
		t.Fatalf("无参解析不应置位任何字段：%+v", ra)
	}
}

func TestParseRunArgs_ApplyFalseOverride(t *testing.T) {
	ra, err := parseRunArgs([]string{"--apply=false"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ra.ApplySet || ra.Apply {
		t.Fatalf("--apply=false 应显式置位：%+v", ra)
	}
}

func TestParseRunArgs_Errors(t *testing.T) {
	// 缺值、非数字、非 bool、未知参数、重复 path。
	cases := [][]string{
		{"--threshold"},
		{"--threshold", "abc"},
		{"--sample-rate=x"},
		{"--apply=maybe"},
		{"--unknown"},
		{"/a", "/b"},
	}
	for _, args := range cases {
		if _, err := parseRunArgs(args); err == nil {
			t.Fatalf("期望解析失败：%v", args)
		}
	}
}

func TestReportForConfigError(t *testing.T) {
	cfgErr := &config.Error{Code: config.ErrCodeNotFound, Path: "/cwd/vdac.json", Err: errors.New("missing")}
	rr := reportForConfigError("/cwd", runArgs{}, cfgErr)

	if len(rr.Failures) != 1 {
		t.Fatalf("期望 1 条失败：%v", rr.Failures)
	}
	if rr.Failures[0].ErrorCode != domain.ErrCodeConfigNotFound {
		t.Fatalf("error_code 错误：%+v", rr.Failures[0])
	}
	if !rr.DryRun {
		t.Fatalf("未显式 --apply 时应为 dry-run")
	}
	if rr.Summary.Failed != 1 {
		t.Fatalf("summary 未派生：%+v", rr.Summary)
	}
}

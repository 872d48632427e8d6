package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func mk(t *testing.T, root string, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func TestScanVideos_ExtensionsAndOrder(t *testing.T) {
	root := t.TempDir()
	mk(t, root, "b.MP4") // 扩展名大小写不敏感
	mk(t, root, "a.mkv")
	mk(t, root, "notes.txt")
	mk(t, root, "clip.webm") // 不在支持列表
	mk(t, root, "sub/c.avi")

	files, err := ScanVideos(root, "", nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(files) != 3 {
		t.Fatalf("期望 3 个视频，实际 %d：%v", len(files), files)
	}
	// 输出按 RelPath 字典序。
	if files[0].RelPath != "a.mkv" || files[1].RelPath != "b.MP4" || files[2].RelPath != filepath.Join("sub", "c.avi") {
		t.Fatalf("排序错误：%v", files)
	}
	if files[1].Ext != ".mp4" {
		t.Fatalf("扩展名应小写归一：%q", files[1].Ext)
	}
	if files[1].Base != "b" {
		t.Fatalf("Base 错误：%q", files[1].Base)
	}
	if files[0].Size != 1 {
		t.Fatalf("Size 应来自 stat：%d", files[0].Size)
	}
}

func TestScanVideos_PermanentExcludes(t *testing.T) {
	root := t.TempDir()
	mk(t, root, "keep.mp4")
	mk(t, root, "archive/old.mp4")
	mk(t, root, "cache/tmp.mp4")

	files, err := ScanVideos(root, "", nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(files) != 1 || files[0].RelPath != "keep.mp4" {
		t.Fatalf("archive/ 与 cache/ 应永久排除：%v", files)
	}
}

func TestScanVideos_CustomArchiveDirExcluded(t *testing.T) {
	root := t.TempDir()
	mk(t, root, "keep.mp4")
	mk(t, root, "dup/old.mp4")

	files, err := ScanVideos(root, filepath.Join(root, "dup"), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(files) != 1 || files[0].RelPath != "keep.mp4" {
		t.Fatalf("自定义归档目录应排除：%v", files)
	}
}

func TestScanVideos_ConfigExcludeDirs(t *testing.T) {
	root := t.TempDir()
	mk(t, root, "keep.mp4")
	mk(t, root, "samples/s.mp4")
	mk(t, root, "samples/deep/d.mp4")

	files, err := ScanVideos(root, "", []string{"samples"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(files) != 1 || files[0].RelPath != "keep.mp4" {
		t.Fatalf("exclude_dirs 应整棵子树排除：%v", files)
	}
}

func TestScanVideos_EmptyRoot(t *testing.T) {
	files, err := ScanVideos(t.TempDir(), "", nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(files) != 0 {
		t.Fatalf("空目录应返回空列表：%v", files)
	}
}

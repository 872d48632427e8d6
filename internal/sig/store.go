package sig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/VDAC/internal/domain"
	"github.com/John-Robertt/VDAC/internal/infra/fsx"
)

// Store 提供 <path>/cache/signatures/ 下的签名缓存读写。
// 构建签名的成本由解码主导，缓存让重复 run（调阈值重跑）跳过解码。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
// - 缓存键含 (路径, 大小, mtime)：文件一变，旧条目自然失效
// - 命中还要求采样率与算法一致，否则按 miss 处理（宁可重算，不可错配）
type Store struct {
	Root     string // <path>（扫描根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("sig: cache read-only")

func NewStore(root string, readOnly bool) *Store {
	return &Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// entry 是缓存文件的落盘结构；Rate 记录请求采样率（生效采样率在签名内）。
type entry struct {
	Rate      float64          `json:"rate"`
	Signature domain.Signature `json:"signature"`
}

// Path 返回某个视频签名缓存的绝对路径。
func (s *Store) Path(f domain.VideoFile) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", f.AbsPath, f.Size, f.ModUnix)))
	name := hex.EncodeToString(sum[:12]) + ".json"
	return filepath.Join(s.Root, "cache", "signatures", name)
}

// Read 读取缓存签名；miss（不存在/坏文件/参数不匹配）返回 ok=false。
// 坏缓存不报错：忽略并走重算（apply 会写回新缓存）。
func (s *Store) Read(f domain.VideoFile, rate float64, algo string) (domain.Signature, bool) {
	b, err := os.ReadFile(s.Path(f))
	if err != nil {
		return domain.Signature{}, false
	}

	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.Signature{}, false
	}
	if e.Signature.HashAlgo != algo || len(e.Signature.Fingerprints) == 0 {
		return domain.Signature{}, false
	}
	if math.Abs(e.Rate-rate) > 1e-9 {
		return domain.Signature{}, false
	}
	return e.Signature, true
}

// Write 写入缓存签名（原子覆盖）。ReadOnly 时拒绝写入。
func (s *Store) Write(f domain.VideoFile, rate float64, sig domain.Signature) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	b, err := json.Marshal(entry{Rate: rate, Signature: sig})
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache", "signatures")
	return fsx.WriteFileAtomicReplace(dir, filepath.Base(s.Path(f)), b)
}

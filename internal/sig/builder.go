package sig

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/VDAC/internal/domain"
	"github.com/John-Robertt/VDAC/internal/media"
	"github.com/John-Robertt/VDAC/internal/phash"
)

// EmptySignatureError 表示整个视频没有任何帧被成功采样（零时长或全损文件）。
// 该资产被排除出比较阶段，并作为处理失败上报——不允许静默丢弃。
type EmptySignatureError struct {
	Path string
}

func (e *EmptySignatureError) Error() string {
	return fmt.Sprintf("视频 %q 没有采样到任何帧（零时长或文件损坏）", e.Path)
}

// IsEmptySignature 判断 err 是否为空签名失败。
func IsEmptySignature(err error) bool {
	var e *EmptySignatureError
	return errors.As(err, &e)
}

// frameSource 是 Builder 消费的最小帧序列接口（*media.FrameSeq 天然满足）。
// 抽出接口是为了让单测能用内存帧替代真实 ffmpeg 抽帧。
type frameSource interface {
	Next() (media.Frame, bool)
	Rate() float64
	Close() error
}

// openFrames 可替换：单测不依赖 ffmpeg 二进制。
var openFrames = func(ctx context.Context, path string, rate float64) (frameSource, float64, error) {
	seq, dur, err := media.OpenFrames(ctx, path, rate)
	if err != nil {
		return nil, 0, err
	}
	return seq, dur, nil
}

// Builder 把采样+哈希流水线跑到底，产出单个视频的内容签名。
//
// 资产间完全独立（无共享可变状态），可安全并发调用 Build。
// 运行成本由“解码 + 每采样帧一次哈希”主导。
type Builder struct {
	Rate float64
	Algo string

	// Cache 为 nil 时禁用签名缓存。
	Cache *Store
}

// Build 为一个视频构建签名（指纹按时间序收集）。
//
// 失败语义：
// - 容器打不开/没有视频流 → media.DecodeError
// - 一帧都没采到 → EmptySignatureError
// 两者都是资产级失败，由调用方聚合进失败列表。
func (b Builder) Build(ctx context.Context, f domain.VideoFile) (domain.Signature, error) {
	if b.Cache != nil {
		if sig, ok := b.Cache.Read(f, b.Rate, b.Algo); ok {
			return sig, nil
		}
	}

	seq, dur, err := openFrames(ctx, f.AbsPath, b.Rate)
	if err != nil {
		return domain.Signature{}, err
	}
	defer seq.Close()

	fps := make([]domain.Fingerprint, 0, 64)
	for {
		if err := ctx.Err(); err != nil {
			return domain.Signature{}, err
		}
		fr, ok := seq.Next()
		if !ok {
			break
		}
		fp, err := phash.Hash(fr.Image, b.Algo)
		if err != nil {
			// 单帧哈希失败等价于该时间戳采样失败：跳过。
			continue
		}
		fps = append(fps, fp)
	}

	if len(fps) == 0 {
		return domain.Signature{}, &EmptySignatureError{Path: f.AbsPath}
	}

	sig := domain.Signature{
		Fingerprints: fps,
		SampleRate:   seq.Rate(),
		FrameCount:   len(fps),
		DurationSec:  dur,
		HashAlgo:     b.Algo,
	}

	if b.Cache != nil {
		// 缓存写失败不影响本次结果（下次重算而已）。
		_ = b.Cache.Write(f, b.Rate, sig)
	}
	return sig, nil
}

package imgx

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// maxHashWidth 是送入感知哈希前的宽度上限。
// 哈希自身会降采样到固定网格，这里先压一轮只是为了限制解码帧的内存占用，
// 并让不同分辨率的同一内容走相同的缩放路径。
const maxHashWidth = 256

// DecodeFrame 解码一张帧图（ffmpeg 抽帧产物，JPEG/PNG 均可）并做哈希前归一化。
func DecodeFrame(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return Normalize(img)
}

// Normalize 做哈希前归一化：限宽缩放 + 灰度。
//
// 约束：
// - 纯函数，同一输入必得同一输出（指纹的确定性依赖于此）
// - 缩放只缩不放（小图保持原样），避免插值放大引入噪声
func Normalize(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	if b.Dx() > maxHashWidth {
		img = imaging.Resize(img, maxHashWidth, 0, imaging.Box)
	}
	return imaging.Grayscale(img), nil
}

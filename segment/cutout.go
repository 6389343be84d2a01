package segment

import (
	"image"

	"github.com/chaos-io/sam2cut/imaging"
)

// Cutout 把掩码命中的像素贴到全透明画布上，得到抠出的主体。
// 掩码按布尔处理：命中的像素原样拷贝且完全不透明，未命中保持透明，
// 不做羽化和边缘平滑
func Cutout(img image.Image, mask *Mask) *image.NRGBA {
	src := imaging.ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	m := mask.ScaleTo(w, h)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcRow := y * src.Stride
		outRow := y * out.Stride
		maskRow := y * m.Gray.Stride
		for x := 0; x < w; x++ {
			if m.Gray.Pix[maskRow+x] < foregroundThreshold {
				continue
			}
			si := srcRow + x*4
			oi := outRow + x*4
			out.Pix[oi] = src.Pix[si]
			out.Pix[oi+1] = src.Pix[si+1]
			out.Pix[oi+2] = src.Pix[si+2]
			out.Pix[oi+3] = 255
		}
	}
	return out
}

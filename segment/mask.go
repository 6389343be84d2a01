package segment

import (
	"image"

	"golang.org/x/image/draw"
)

// foregroundThreshold 灰度值达到该阈值的像素算前景
const foregroundThreshold = 128

// Mask 模型输出的分割掩码，白色为前景、黑色为背景
type Mask struct {
	Gray *image.Gray
}

func NewMask(gray *image.Gray) *Mask {
	return &Mask{Gray: gray}
}

func (m *Mask) Bounds() image.Rectangle {
	return m.Gray.Bounds()
}

// ForegroundAt 判断 (x, y) 是否命中前景
func (m *Mask) ForegroundAt(x, y int) bool {
	return m.Gray.GrayAt(x, y).Y >= foregroundThreshold
}

// ScaleTo 把掩码缩放到目标尺寸（最近邻，保持硬边界），尺寸一致时原样返回
func (m *Mask) ScaleTo(width, height int) *Mask {
	b := m.Gray.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return m
	}

	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), m.Gray, b, draw.Src, nil)
	return &Mask{Gray: dst}
}

// BBox 前景包围盒，没有前景像素时返回 false
func (m *Mask) BBox() (image.Rectangle, bool) {
	b := m.Gray.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	found := false

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := (y - b.Min.Y) * m.Gray.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.Gray.Pix[row+(x-b.Min.X)] < foregroundThreshold {
				continue
			}
			found = true
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if !found {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// Coverage 前景像素占比 (0~1)
func (m *Mask) Coverage() float64 {
	b := m.Gray.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	count := 0
	for y := 0; y < b.Dy(); y++ {
		row := y * m.Gray.Stride
		for x := 0; x < b.Dx(); x++ {
			if m.Gray.Pix[row+x] >= foregroundThreshold {
				count++
			}
		}
	}
	return float64(count) / float64(total)
}

// Empty 没有任何前景像素
func (m *Mask) Empty() bool {
	_, found := m.BBox()
	return !found
}

package segment

import (
	"context"
	"errors"
	"image"
)

// Label 提示点类型，与 SAM 的约定一致
type Label int

const (
	LabelBackground Label = 0 // 背景/排除
	LabelForeground Label = 1 // 前景/点击
)

// Point 原图像素坐标系上的一个提示点
type Point struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Label Label `json:"label"`
}

// Segmenter 把一组提示点交给分割模型，拿回前景掩码。
// 掩码分辨率允许和原图不同，贴回时由 Mask.ScaleTo 对齐
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, points []Point) (*Mask, error)
}

// ErrNoMask 模型对给定的点没有产出任何掩码
var ErrNoMask = errors.New("no mask found for the given points, try different ones")

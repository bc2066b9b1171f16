//go:build !gocv
// +build !gocv

package vision

import (
	"errors"
	"image"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/homography"
)

var errNoOpenCV = errors.New("gocv build tag is not enabled")

// OpenCV заглушка бэкенда (сборка без OpenCV).
type OpenCV struct{}

// NewOpenCV создаёт бэкенд-заглушку.
func NewOpenCV() *OpenCV {
	return &OpenCV{}
}

// Gray возвращает ошибку, если сборка без тега gocv.
func (o *OpenCV) Gray(img image.Image) (*image.Gray, error) {
	_ = img
	return nil, errNoOpenCV
}

// Warp возвращает ошибку, если сборка без тега gocv.
func (o *OpenCV) Warp(src image.Image, h entity.Transform) (image.Image, error) {
	_ = src
	_ = h
	return nil, errNoOpenCV
}

// Track возвращает ошибку, если сборка без тега gocv.
func (o *OpenCV) Track(prev, next *image.Gray, points []entity.Point) ([]entity.Point, []bool, error) {
	_ = prev
	_ = next
	_ = points
	return nil, nil, errNoOpenCV
}

// Fit возвращает ошибку, если сборка без тега gocv.
func (o *OpenCV) Fit(points0, points1 []entity.Point, group entity.WarpingGroup, opts homography.Options) (entity.Transform, error) {
	_, _, _, _ = points0, points1, group, opts
	return entity.Identity(), errNoOpenCV
}

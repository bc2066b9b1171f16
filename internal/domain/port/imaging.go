package port

import (
	"image"

	"vision-stab/internal/domain/entity"
)

// ImageOps базовые операции над кадрами
type ImageOps interface {
	// Gray переводит кадр в оттенки серого. *image.Gray возвращается как есть.
	Gray(img image.Image) (*image.Gray, error)

	// Warp строит кадр того же размера: out(x) = src(h · x).
	Warp(src image.Image, h entity.Transform) (image.Image, error)
}

// OverlayRenderer рисует визуализацию стабилизации
type OverlayRenderer interface {
	// Render рисует соответствия и контур опорного кадра, перенесённый h.
	Render(base image.Image, pairs []entity.Correspondence, h entity.Transform) (image.Image, error)
}

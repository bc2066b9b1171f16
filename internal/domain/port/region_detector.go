package port

import (
	"image"

	"vision-stab/internal/domain/entity"
)

// RegionDetector интерфейс детектора экстремальных областей
type RegionDetector interface {
	// Detect находит области заданной полярности на всём изображении.
	// Идентификаторы областей не заполняются.
	Detect(img *image.Gray, polarity entity.Polarity) (entity.RegionSet, error)

	// Retrieve обновляет статистику областей рядом с их центроидами.
	// Ненайденные области отбрасываются, идентификаторы сохраняются.
	Retrieve(img *image.Gray, regions entity.RegionSet, polarity entity.Polarity) (entity.RegionSet, error)
}

// PointTracker интерфейс разреженного трекера точек
type PointTracker interface {
	// Track переносит точки с prev на next. Для каждой точки возвращается
	// новое положение и признак успеха.
	Track(prev, next *image.Gray, points []entity.Point) ([]entity.Point, []bool, error)
}

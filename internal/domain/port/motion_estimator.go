package port

import (
	"image"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/homography"
)

// MotionEstimator стратегия оценки преобразования между двумя кадрами
type MotionEstimator interface {
	// Estimate возвращает преобразование из координат pair.Reference
	// в координаты pair.Current.
	Estimate(pair entity.FramePair) (entity.Transform, error)

	// Visualize строит визуализацию последней оценки поверх кадра.
	Visualize(frame image.Image, running entity.Transform) (image.Image, error)
}

// TransformFitter подбирает преобразование группы по парам точек
type TransformFitter interface {
	// Fit возвращает преобразование, переводящее points0 в points1.
	Fit(points0, points1 []entity.Point, group entity.WarpingGroup, opts homography.Options) (entity.Transform, error)
}

// Package homography подбирает преобразование заданной группы по парам точек.
package homography

import (
	"fmt"

	"vision-stab/internal/domain/entity"
)

// Параметры RANSAC по умолчанию.
const (
	defaultThreshold  = 3.0   // допустимая ошибка репроекции, пикселей
	defaultIterations = 2000  // максимум итераций
	defaultConfidence = 0.995 // требуемая вероятность найти выборку без выбросов
)

// Options параметры робастной оценки.
type Options struct {
	Threshold  float64 // допустимая ошибка репроекции, пикселей
	Iterations int     // максимум итераций RANSAC
	Confidence float64 // вероятность найти выборку без выбросов, 0..1
	Seed       int64   // зерно генератора выборок

	// Модель камеры для RotHomography. Нулевые значения выводятся из точек.
	Center entity.Point
	Focal  float64
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		Threshold:  defaultThreshold,
		Iterations: defaultIterations,
		Confidence: defaultConfidence,
		Seed:       1,
	}
}

var minCorrespondences = map[entity.WarpingGroup]int{
	entity.Translation:   2,
	entity.Rigid:         3,
	entity.Affine:        3,
	entity.Homography:    4,
	entity.RotHomography: 4,
}

// MinCorrespondences возвращает минимальное число пар для группы.
func MinCorrespondences(group entity.WarpingGroup) (int, error) {
	n, ok := minCorrespondences[group]
	if !ok {
		return 0, fmt.Errorf("unsupported warping group %s", group)
	}
	return n, nil
}

// FindHomography подбирает преобразование группы group, переводящее
// points0 в points1, с параметрами по умолчанию.
func FindHomography(points0, points1 []entity.Point, group entity.WarpingGroup) (entity.Transform, error) {
	return FindHomographyWith(points0, points1, group, DefaultOptions())
}

// FindHomographyWith подбирает преобразование группы group, переводящее
// points0 в points1. При ошибке возвращается тождественное преобразование.
func FindHomographyWith(points0, points1 []entity.Point, group entity.WarpingGroup, opts Options) (entity.Transform, error) {
	if len(points0) != len(points1) {
		return entity.Identity(), fmt.Errorf("find homography: %d vs %d points: %w",
			len(points0), len(points1), entity.ErrCountMismatch)
	}

	need, err := MinCorrespondences(group)
	if err != nil {
		return entity.Identity(), err
	}
	if len(points0) < need {
		return entity.Identity(), fmt.Errorf("find homography: %s needs %d correspondences, got %d: %w",
			group, need, len(points0), entity.ErrInsufficientCorrespondences)
	}

	opts = withDefaults(opts)
	if group == entity.RotHomography {
		opts = withCamera(opts, points0, points1)
	}

	fit := fitters[group]
	var h entity.Transform
	if len(points0) == need {
		h, err = fit(points0, points1, opts)
	} else {
		h, err = ransac(points0, points1, need, fit, opts)
	}
	if err != nil {
		return entity.Identity(), fmt.Errorf("find homography (%s): %w", group, err)
	}
	if !h.Valid() {
		return entity.Identity(), fmt.Errorf("find homography (%s): singular result: %w",
			group, entity.ErrDegenerateGeometry)
	}
	return h.Normalize(), nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.Iterations <= 0 {
		opts.Iterations = def.Iterations
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = def.Confidence
	}
	return opts
}

// withCamera дополняет модель камеры: центр по умолчанию в центроиде
// исходных точек, фокус равен удвоенному размаху точек вокруг центра.
func withCamera(opts Options, points0, points1 []entity.Point) Options {
	if opts.Center == (entity.Point{}) {
		opts.Center = centroid(points0)
	}
	if opts.Focal <= 0 {
		spread := 0.0
		for _, pts := range [][]entity.Point{points0, points1} {
			for _, p := range pts {
				spread = max(spread, p.Dist(opts.Center))
			}
		}
		opts.Focal = max(2*spread, 1)
	}
	return opts
}

// Fitter подбирает преобразование собственной реализацией RANSAC.
type Fitter struct{}

// Fit вызывает FindHomographyWith.
func (Fitter) Fit(points0, points1 []entity.Point, group entity.WarpingGroup, opts Options) (entity.Transform, error) {
	return FindHomographyWith(points0, points1, group, opts)
}

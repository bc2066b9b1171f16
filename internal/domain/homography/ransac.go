package homography

import (
	"fmt"
	"math"
	"math/rand"

	"vision-stab/internal/domain/entity"
)

// ransac перебирает минимальные выборки, выбирает модель с наибольшим
// числом инлаеров и уточняет её по всем инлаерам.
func ransac(points0, points1 []entity.Point, need int, fit fitFunc, opts Options) (entity.Transform, error) {
	n := len(points0)
	rng := rand.New(rand.NewSource(opts.Seed))
	sample0 := make([]entity.Point, need)
	sample1 := make([]entity.Point, need)

	var best entity.Transform
	var bestInliers []int
	limit := opts.Iterations
	for iter := 0; iter < limit; iter++ {
		for i, k := range rng.Perm(n)[:need] {
			sample0[i], sample1[i] = points0[k], points1[k]
		}
		h, err := fit(sample0, sample1, opts)
		if err != nil || !h.Valid() {
			continue
		}

		inliers := collectInliers(h, points0, points1, opts.Threshold)
		if len(inliers) <= len(bestInliers) {
			continue
		}
		best, bestInliers = h, inliers
		if len(inliers) == n {
			break
		}
		limit = min(limit, adaptiveIterations(len(inliers), n, need, opts.Confidence))
	}

	if len(bestInliers) < need {
		return entity.Identity(), fmt.Errorf("ransac: no consistent sample among %d points: %w",
			n, entity.ErrDegenerateGeometry)
	}

	in0 := make([]entity.Point, len(bestInliers))
	in1 := make([]entity.Point, len(bestInliers))
	for i, k := range bestInliers {
		in0[i], in1[i] = points0[k], points1[k]
	}
	refined, err := fit(in0, in1, opts)
	if err != nil || !refined.Valid() {
		return best, nil
	}
	if len(collectInliers(refined, points0, points1, opts.Threshold)) < len(bestInliers) {
		return best, nil
	}
	return refined, nil
}

// collectInliers возвращает индексы пар с ошибкой репроекции не больше threshold.
func collectInliers(h entity.Transform, points0, points1 []entity.Point, threshold float64) []int {
	var inliers []int
	for i := range points0 {
		p, ok := h.Apply(points0[i])
		if !ok {
			continue
		}
		if p.Dist(points1[i]) <= threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}

// adaptiveIterations число итераций, достаточное при доле инлаеров inliers/n.
func adaptiveIterations(inliers, n, need int, confidence float64) int {
	w := float64(inliers) / float64(n)
	p := math.Pow(w, float64(need))
	if p >= 1 {
		return 1
	}
	if p <= 0 {
		return math.MaxInt
	}
	k := math.Log(1-confidence) / math.Log(1-p)
	if k > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(k))
}

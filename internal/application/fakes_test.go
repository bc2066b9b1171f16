package app

import (
	"image"

	"vision-stab/internal/domain/entity"
)

// fakeDetector возвращает заранее заданные области и не меняет их при Retrieve.
type fakeDetector struct {
	regions  map[entity.Polarity]entity.RegionSet
	retrieve func(regions entity.RegionSet) entity.RegionSet
}

func (d *fakeDetector) Detect(_ *image.Gray, polarity entity.Polarity) (entity.RegionSet, error) {
	return d.regions[polarity].Clone(), nil
}

func (d *fakeDetector) Retrieve(_ *image.Gray, regions entity.RegionSet, _ entity.Polarity) (entity.RegionSet, error) {
	if d.retrieve != nil {
		return d.retrieve(regions.Clone()), nil
	}
	return regions.Clone(), nil
}

// shiftTracker сдвигает все точки на (dx, dy); точки из lose теряются.
type shiftTracker struct {
	dx, dy float64
	lose   map[entity.Point]bool
	short  bool
}

func (s *shiftTracker) Track(_, _ *image.Gray, points []entity.Point) ([]entity.Point, []bool, error) {
	out := make([]entity.Point, len(points))
	status := make([]bool, len(points))
	for i, p := range points {
		out[i] = entity.Point{X: p.X + s.dx, Y: p.Y + s.dy}
		status[i] = !s.lose[p]
	}
	if s.short && len(out) > 0 {
		return out[1:], status[1:], nil
	}
	return out, status, nil
}

func region(x, y float64) entity.Region {
	return entity.Region{Centroid: entity.Point{X: x, Y: y}, Stats: entity.RegionStats{Area: 50}}
}

func blank(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func ids(set entity.RegionSet) []int {
	out := make([]int, 0, len(set))
	for _, r := range set {
		out = append(out, r.ID)
	}
	return out
}

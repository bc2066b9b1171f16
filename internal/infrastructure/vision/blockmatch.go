package vision

import (
	"fmt"
	"image"
	"math"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

// BlockMatcher переносит точки поиском блока с минимальной суммой
// квадратов разностей и уточняет смещение параболой до долей пикселя.
type BlockMatcher struct {
	Window     int     // половина стороны окна шаблона
	Search     int     // радиус поиска в пикселях
	MaxMeanSSD float64 // максимальная средняя квадратичная ошибка совпадения
	MinTexture float64 // минимальная дисперсия яркости шаблона
}

// NewBlockMatcher создаёт трекер с параметрами по умолчанию.
func NewBlockMatcher() *BlockMatcher {
	return &BlockMatcher{
		Window:     7,
		Search:     8,
		MaxMeanSSD: 400,
		MinTexture: 4,
	}
}

// Track переносит точки с prev на next.
func (m *BlockMatcher) Track(prev, next *image.Gray, points []entity.Point) ([]entity.Point, []bool, error) {
	if prev.Bounds().Size() != next.Bounds().Size() {
		return nil, nil, fmt.Errorf("track: %v vs %v: %w", prev.Bounds().Size(), next.Bounds().Size(), entity.ErrFrameSize)
	}
	a, b := newGrayView(prev), newGrayView(next)

	out := make([]entity.Point, len(points))
	status := make([]bool, len(points))
	for i, p := range points {
		out[i] = p
		if q, ok := m.trackPoint(a, b, p); ok {
			out[i], status[i] = q, true
		}
	}
	return out, status, nil
}

func (m *BlockMatcher) trackPoint(a, b grayView, p entity.Point) (entity.Point, bool) {
	w, s := m.Window, m.Search
	cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))
	if !inside(a, cx, cy, w) {
		return p, false
	}
	if templateVariance(a, cx, cy, w) < m.MinTexture {
		return p, false
	}

	side := 2*s + 1
	ssd := make([]float64, side*side)
	best, bestIdx := math.Inf(1), -1
	for dy := -s; dy <= s; dy++ {
		for dx := -s; dx <= s; dx++ {
			idx := (dy+s)*side + (dx + s)
			ssd[idx] = math.Inf(1)
			if !inside(b, cx+dx, cy+dy, w) {
				continue
			}
			sum := 0.0
			for y := -w; y <= w; y++ {
				for x := -w; x <= w; x++ {
					d := float64(a.at(cx+x, cy+y)) - float64(b.at(cx+dx+x, cy+dy+y))
					sum += d * d
				}
			}
			ssd[idx] = sum
			if sum < best {
				best, bestIdx = sum, idx
			}
		}
	}
	if bestIdx < 0 {
		return p, false
	}
	area := float64((2*w + 1) * (2*w + 1))
	if best/area > m.MaxMeanSSD {
		return p, false
	}

	bx, by := bestIdx%side, bestIdx/side
	subX, subY := 0.0, 0.0
	if bx > 0 && bx < side-1 {
		subX = parabolaPeak(ssd[bestIdx-1], ssd[bestIdx], ssd[bestIdx+1])
	}
	if by > 0 && by < side-1 {
		subY = parabolaPeak(ssd[bestIdx-side], ssd[bestIdx], ssd[bestIdx+side])
	}
	return entity.Point{
		X: p.X + float64(bx-s) + subX,
		Y: p.Y + float64(by-s) + subY,
	}, true
}

func inside(v grayView, cx, cy, w int) bool {
	return cx-w >= 0 && cy-w >= 0 && cx+w < v.w && cy+w < v.h
}

func templateVariance(v grayView, cx, cy, w int) float64 {
	var sum, sq float64
	for y := -w; y <= w; y++ {
		for x := -w; x <= w; x++ {
			p := float64(v.at(cx+x, cy+y))
			sum += p
			sq += p * p
		}
	}
	n := float64((2*w + 1) * (2*w + 1))
	mean := sum / n
	return sq/n - mean*mean
}

// parabolaPeak смещение вершины параболы через три соседних значения, в пределах ±0.5.
func parabolaPeak(left, center, right float64) float64 {
	if math.IsInf(left, 0) || math.IsInf(right, 0) {
		return 0
	}
	den := left - 2*center + right
	if den <= 0 {
		return 0
	}
	return math.Max(-0.5, math.Min(0.5, (left-right)/(2*den)))
}

// Проверка реализации интерфейса
var _ port.PointTracker = (*BlockMatcher)(nil)

package vision

import (
	"errors"
	"image"
	"math"
	"sort"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

// ExtremalDetector находит устойчивые экстремальные области: связные
// компоненты порогового изображения, площадь которых мало меняется
// при сдвиге порога на один шаг.
type ExtremalDetector struct {
	LevelStep     int     // шаг порога яркости
	MinArea       int     // минимальная площадь области
	MaxAreaRatio  float64 // максимальная площадь как доля кадра
	MaxVariation  float64 // допустимое относительное изменение площади
	MinDistance   float64 // расстояние подавления дублей между центроидами
	MaxRegions    int     // максимум областей одной полярности
	SearchRadius  int     // радиус поиска затравки при обновлении
	MaxAreaChange float64 // допустимое отношение площадей между кадрами
}

// NewExtremalDetector создаёт детектор с параметрами по умолчанию.
func NewExtremalDetector() *ExtremalDetector {
	return &ExtremalDetector{
		LevelStep:     8,
		MinArea:       30,
		MaxAreaRatio:  0.25,
		MaxVariation:  0.25,
		MinDistance:   4,
		MaxRegions:    200,
		SearchRadius:  4,
		MaxAreaChange: 2,
	}
}

// component статистика связной компоненты.
type component struct {
	area                   int
	sumX, sumY, sumV       float64
	minX, minY, maxX, maxY int
	peak                   int // индекс пикселя с максимальным значением
}

func (c component) region(polarity entity.Polarity, level uint8, variation float64) entity.Region {
	n := float64(c.area)
	return entity.Region{
		Polarity: polarity,
		Centroid: entity.Point{X: c.sumX / n, Y: c.sumY / n},
		Stats: entity.RegionStats{
			Area:      c.area,
			Bounds:    image.Rect(c.minX, c.minY, c.maxX+1, c.maxY+1),
			Level:     level,
			Mean:      c.sumV / n,
			Variation: variation,
		},
	}
}

// field значения пикселей в системе полярности: для тёмных областей
// яркость инвертируется.
type field struct {
	values []uint8
	w, h   int
	queue  []int
}

func newField(img *image.Gray, polarity entity.Polarity) *field {
	v := newGrayView(img)
	f := &field{values: make([]uint8, v.w*v.h), w: v.w, h: v.h}
	for y := 0; y < v.h; y++ {
		for x := 0; x < v.w; x++ {
			p := v.at(x, y)
			if polarity == entity.Dark {
				p = 255 - p
			}
			f.values[y*v.w+x] = p
		}
	}
	return f
}

// flood заливает 4-связную компоненту пикселей со значением >= level,
// помечая её tag. limit > 0 прерывает заливку, когда площадь его превышает.
func (f *field) flood(seed int, level uint8, marks []int32, tag int32, limit int) (component, bool) {
	c := component{minX: f.w, minY: f.h, maxX: -1, maxY: -1, peak: seed}
	f.queue = append(f.queue[:0], seed)
	marks[seed] = tag
	for len(f.queue) > 0 {
		i := f.queue[len(f.queue)-1]
		f.queue = f.queue[:len(f.queue)-1]

		x, y := i%f.w, i/f.w
		v := f.values[i]
		c.area++
		c.sumX += float64(x)
		c.sumY += float64(y)
		c.sumV += float64(v)
		c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
		c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)
		if v > f.values[c.peak] {
			c.peak = i
		}
		if limit > 0 && c.area > limit {
			return c, false
		}

		for _, n := range [4]int{i - 1, i + 1, i - f.w, i + f.w} {
			if n < 0 || n >= len(f.values) {
				continue
			}
			if (n == i-1 && x == 0) || (n == i+1 && x == f.w-1) {
				continue
			}
			if marks[n] == tag || f.values[n] < level {
				continue
			}
			marks[n] = tag
			f.queue = append(f.queue, n)
		}
	}
	return c, true
}

// layer разметка компонент на одном пороге.
type layer struct {
	level      uint8
	labels     []int32 // номер компоненты + 1, 0 для фона
	components []component
}

func (f *field) label(level uint8) layer {
	l := layer{level: level, labels: make([]int32, len(f.values))}
	for i, v := range f.values {
		if v < level || l.labels[i] != 0 {
			continue
		}
		c, _ := f.flood(i, level, l.labels, int32(len(l.components)+1), 0)
		l.components = append(l.components, c)
	}
	return l
}

func (l layer) areaAt(i int) int {
	if id := l.labels[i]; id > 0 {
		return l.components[id-1].area
	}
	return 0
}

func (d *ExtremalDetector) levels() []uint8 {
	step := max(d.LevelStep, 1)
	var out []uint8
	for v := step; v <= 255; v += step {
		out = append(out, uint8(v))
	}
	return out
}

func (d *ExtremalDetector) maxArea(f *field) int {
	return int(d.MaxAreaRatio * float64(f.w*f.h))
}

// Detect находит области заданной полярности на всём изображении.
func (d *ExtremalDetector) Detect(img *image.Gray, polarity entity.Polarity) (entity.RegionSet, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("detect: empty image")
	}
	f := newField(img, polarity)
	levels := d.levels()
	if len(levels) < 3 {
		return nil, errors.New("detect: level step too large")
	}
	maxArea := d.maxArea(f)

	var candidates entity.RegionSet
	prev, cur := f.label(levels[0]), f.label(levels[1])
	for k := 1; k+1 < len(levels); k++ {
		next := f.label(levels[k+1])
		for _, c := range cur.components {
			if c.area < d.MinArea || c.area > maxArea {
				continue
			}
			larger := prev.areaAt(c.peak)
			smaller := next.areaAt(c.peak)
			variation := float64(larger-smaller) / float64(c.area)
			if variation > d.MaxVariation {
				continue
			}
			candidates = append(candidates, c.region(polarity, cur.level, variation))
		}
		prev, cur = cur, next
	}

	return d.suppress(candidates), nil
}

// suppress оставляет самую устойчивую область среди близких центроидов.
func (d *ExtremalDetector) suppress(candidates entity.RegionSet) entity.RegionSet {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Stats.Variation < candidates[j].Stats.Variation
	})
	out := make(entity.RegionSet, 0, len(candidates))
	for _, c := range candidates {
		if d.MaxRegions > 0 && len(out) >= d.MaxRegions {
			break
		}
		duplicate := false
		for _, kept := range out {
			if kept.Centroid.Dist(c.Centroid) < d.MinDistance {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, c)
		}
	}
	return out
}

// Retrieve обновляет статистику областей рядом с их центроидами.
// Ненайденные области отбрасываются, идентификаторы сохраняются.
func (d *ExtremalDetector) Retrieve(img *image.Gray, regions entity.RegionSet, polarity entity.Polarity) (entity.RegionSet, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("retrieve: empty image")
	}
	f := newField(img, polarity)
	maxArea := d.maxArea(f)
	marks := make([]int32, len(f.values))

	out := make(entity.RegionSet, 0, len(regions))
	for i, r := range regions {
		seed, ok := f.seed(r.Centroid, r.Stats.Level, d.SearchRadius)
		if !ok {
			continue
		}
		c, ok := f.flood(seed, r.Stats.Level, marks, int32(i+1), maxArea)
		if !ok || c.area < d.MinArea {
			continue
		}
		if r.Stats.Area > 0 && d.MaxAreaChange > 0 {
			ratio := float64(c.area) / float64(r.Stats.Area)
			if ratio > d.MaxAreaChange || ratio < 1/d.MaxAreaChange {
				continue
			}
		}

		refreshed := c.region(polarity, r.Stats.Level, r.Stats.Variation)
		refreshed.ID = r.ID
		out = append(out, refreshed)
	}
	return out, nil
}

// seed ищет ближайший к p пиксель со значением >= level в квадрате радиуса radius.
func (f *field) seed(p entity.Point, level uint8, radius int) (int, bool) {
	cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))
	best, bestDist := -1, math.MaxFloat64
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || y < 0 || x >= f.w || y >= f.h {
				continue
			}
			i := y*f.w + x
			if f.values[i] < level {
				continue
			}
			if dist := math.Hypot(float64(x)-p.X, float64(y)-p.Y); dist < bestDist {
				best, bestDist = i, dist
			}
		}
	}
	return best, best >= 0
}

// Проверка реализации интерфейса
var _ port.RegionDetector = (*ExtremalDetector)(nil)

package entity

import (
	"image"
	"math"
)

// Point точка в пиксельных координатах кадра. Пиксель (i, j) лежит в (i, j).
type Point struct {
	X float64
	Y float64
}

// Sub возвращает разность точек.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist возвращает евклидово расстояние между точками.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Polarity полярность экстремальной области
type Polarity int

const (
	Bright Polarity = iota // светлая область на тёмном фоне
	Dark                   // тёмная область на светлом фоне
)

func (p Polarity) String() string {
	if p == Dark {
		return "dark"
	}
	return "bright"
}

// RegionStats статистика области, которой владеет детектор.
type RegionStats struct {
	Area      int             // площадь в пикселях
	Bounds    image.Rectangle // ограничивающий прямоугольник
	Level     uint8           // порог, на котором область устойчива
	Mean      float64         // средняя яркость (в системе полярности)
	Variation float64         // относительное изменение площади между порогами
}

// Region отслеживаемая область. Центроид является якорем трекинга и
// единственным полем, которое меняет трекер.
type Region struct {
	ID       int
	Polarity Polarity
	Centroid Point
	Stats    RegionStats
}

// RegionSet упорядоченный набор областей одной полярности.
type RegionSet []Region

// Centroids возвращает якоря трекинга в порядке областей.
func (s RegionSet) Centroids() []Point {
	points := make([]Point, len(s))
	for i, r := range s {
		points[i] = r.Centroid
	}
	return points
}

// Clone возвращает независимую копию набора.
func (s RegionSet) Clone() RegionSet {
	if s == nil {
		return nil
	}
	out := make(RegionSet, len(s))
	copy(out, s)
	return out
}

// ByID индексирует набор по идентификатору области.
func (s RegionSet) ByID() map[int]Region {
	index := make(map[int]Region, len(s))
	for _, r := range s {
		index[r.ID] = r
	}
	return index
}

// Correspondence пара положений одной области в двух кадрах.
type Correspondence struct {
	ID       int
	Polarity Polarity
	From     Point
	To       Point
}

// Match сопоставляет области двух наборов по идентификатору.
// Порядок результата следует порядку cur.
func Match(base, cur RegionSet) []Correspondence {
	index := base.ByID()
	out := make([]Correspondence, 0, len(cur))
	for _, r := range cur {
		b, ok := index[r.ID]
		if !ok {
			continue
		}
		out = append(out, Correspondence{
			ID:       r.ID,
			Polarity: r.Polarity,
			From:     b.Centroid,
			To:       r.Centroid,
		})
	}
	return out
}

// SplitCorrespondences разворачивает пары в два параллельных списка точек.
func SplitCorrespondences(pairs []Correspondence) (from, to []Point) {
	from = make([]Point, len(pairs))
	to = make([]Point, len(pairs))
	for i, c := range pairs {
		from[i] = c.From
		to[i] = c.To
	}
	return from, to
}

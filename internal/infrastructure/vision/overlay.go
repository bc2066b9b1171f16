package vision

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

var (
	colorBright = color.RGBA{R: 255, G: 215, A: 255}
	colorDark   = color.RGBA{G: 200, B: 255, A: 255}
	colorFrame  = color.RGBA{G: 255, A: 255}
)

// Overlay рисует соответствия областей и сетку опорного кадра.
type Overlay struct {
	LineWidth float64 // толщина линий в пикселях
	GridSteps int     // число ячеек сетки по каждой оси
}

// NewOverlay создаёт визуализатор с параметрами по умолчанию.
func NewOverlay() *Overlay {
	return &Overlay{LineWidth: 1.5, GridSteps: 4}
}

// Render рисует поверх base линии соответствий и сетку опорного кадра,
// перенесённую преобразованием h в координаты base.
func (o *Overlay) Render(base image.Image, pairs []entity.Correspondence, h entity.Transform) (image.Image, error) {
	if base == nil {
		return nil, errors.New("render: nil image")
	}
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), base, b.Min, draw.Src)

	c := vgimg.NewWith(vgimg.UseImage(dst))
	scale := vg.Inch / vg.Length(c.DPI())
	height := float64(b.Dy())
	toCanvas := func(p entity.Point) vg.Point {
		// у холста ось Y направлена вверх
		return vg.Point{X: vg.Length(p.X) * scale, Y: vg.Length(height-p.Y) * scale}
	}
	c.SetLineWidth(vg.Length(o.LineWidth) * scale)

	o.drawGrid(c, toCanvas, h, float64(b.Dx()), height)

	for _, pair := range pairs {
		c.SetColor(colorBright)
		if pair.Polarity == entity.Dark {
			c.SetColor(colorDark)
		}
		var line vg.Path
		line.Move(toCanvas(pair.From))
		line.Line(toCanvas(pair.To))
		c.Stroke(line)

		var dot vg.Path
		dot.Move(toCanvas(entity.Point{X: pair.To.X + 2, Y: pair.To.Y}))
		dot.Arc(toCanvas(pair.To), 2*scale, 0, 2*math.Pi)
		dot.Close()
		c.Fill(dot)
	}

	return c.Image(), nil
}

func (o *Overlay) drawGrid(c *vgimg.Canvas, toCanvas func(entity.Point) vg.Point, h entity.Transform, w, ht float64) {
	steps := max(o.GridSteps, 1)
	c.SetColor(colorFrame)
	segment := func(a, b entity.Point) {
		pa, okA := h.Apply(a)
		pb, okB := h.Apply(b)
		if !okA || !okB {
			return
		}
		var path vg.Path
		path.Move(toCanvas(pa))
		path.Line(toCanvas(pb))
		c.Stroke(path)
	}
	for i := 0; i <= steps; i++ {
		x := (w - 1) * float64(i) / float64(steps)
		y := (ht - 1) * float64(i) / float64(steps)
		segment(entity.Point{X: x, Y: 0}, entity.Point{X: x, Y: ht - 1})
		segment(entity.Point{X: 0, Y: y}, entity.Point{X: w - 1, Y: y})
	}
}

// Проверка реализации интерфейса
var _ port.OverlayRenderer = (*Overlay)(nil)

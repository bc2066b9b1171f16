// Package report строит графики траектории камеры по результатам стабилизации.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"vision-stab/internal/domain/entity"
)

// Sample параметры накопленного преобразования на одном кадре.
type Sample struct {
	Index     int
	DX, DY    float64
	Angle     float64 // градусы
	Recovered bool    // использовано запасное преобразование
}

// Trajectory накапливает траекторию камеры относительно опорного кадра.
type Trajectory struct {
	mu      sync.Mutex
	title   string
	samples []Sample
}

// NewTrajectory создаёт пустую траекторию. Опорный кадр добавляется сразу.
func NewTrajectory(title string) *Trajectory {
	return &Trajectory{title: title, samples: []Sample{{Index: 0}}}
}

// Add записывает накопленное преобразование кадра index.
func (t *Trajectory) Add(index int, h entity.Transform, recovered bool) {
	dx, dy := h.Offset()
	t.mu.Lock()
	t.samples = append(t.samples, Sample{
		Index:     index,
		DX:        dx,
		DY:        dy,
		Angle:     h.Angle() * 180 / math.Pi,
		Recovered: recovered,
	})
	t.mu.Unlock()
}

// Samples возвращает копию записанных значений.
func (t *Trajectory) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sample(nil), t.samples...)
}

func (t *Trajectory) build() (*plot.Plot, error) {
	samples := t.Samples()
	if len(samples) < 2 {
		return nil, errors.New("trajectory: not enough frames to plot")
	}

	p := plot.New()
	p.Title.Text = t.title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Offset (px) / angle (deg)"

	dx := make(plotter.XYs, 0, len(samples))
	dy := make(plotter.XYs, 0, len(samples))
	angle := make(plotter.XYs, 0, len(samples))
	var recovered plotter.XYs
	for _, s := range samples {
		x := float64(s.Index)
		dx = append(dx, plotter.XY{X: x, Y: s.DX})
		dy = append(dy, plotter.XY{X: x, Y: s.DY})
		angle = append(angle, plotter.XY{X: x, Y: s.Angle})
		if s.Recovered {
			recovered = append(recovered, plotter.XY{X: x, Y: 0})
		}
	}

	series := []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"dx", dx, color.RGBA{R: 220, G: 50, B: 47, A: 255}},
		{"dy", dy, color.RGBA{G: 120, B: 215, A: 255}},
		{"angle", angle, color.RGBA{R: 90, G: 160, B: 60, A: 255}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, fmt.Errorf("trajectory %s: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	if len(recovered) > 0 {
		marks, err := plotter.NewScatter(recovered)
		if err != nil {
			return nil, fmt.Errorf("trajectory fallbacks: %w", err)
		}
		marks.Color = color.Black
		p.Add(marks)
		p.Legend.Add("fallback", marks)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// Save сохраняет график в файл. Формат определяется расширением.
func (t *Trajectory) Save(path string) error {
	p, err := t.build()
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

// WritePNG пишет график в формате PNG.
func (t *Trajectory) WritePNG(w io.Writer) error {
	p, err := t.build()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render trajectory plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write trajectory plot: %w", err)
	}
	return nil
}

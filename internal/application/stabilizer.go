package app

import (
	"errors"
	"fmt"
	"image"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

// StabilizerOptions параметры стабилизатора.
type StabilizerOptions struct {
	Warping   entity.WarpingGroup
	Mode      entity.Mode
	Visualize bool
}

// Result итог стабилизации одного кадра.
type Result struct {
	Frame     image.Image      // стабилизированный кадр
	Transform entity.Transform // накопленное преобразование опорный → текущий
	Delta     entity.Transform // преобразование, полученное от оценщика
	Index     int              // номер кадра, опорный кадр имеет номер 0
	Recovered error            // ошибка кадра, после которой применено запасное преобразование
}

// Stabilizer выравнивает кадры по опорному. Накопленное преобразование H
// переводит координаты опорного кадра в координаты текущего, выходной кадр
// строится как out(x) = frame(H · x).
type Stabilizer struct {
	opts      StabilizerOptions
	estimator port.MotionEstimator
	ops       port.ImageOps

	reference     *image.Gray
	previous      *image.Gray
	running       entity.Transform
	index         int
	visualization image.Image
}

// modeRule описывает режим: какую пару кадров сравнивать, как учесть
// результат оценки и что подставить вместо него при ошибке кадра.
type modeRule struct {
	pair     func(s *Stabilizer, current *image.Gray, index int) (entity.FramePair, error)
	compose  func(running, delta entity.Transform) entity.Transform
	fallback func(running entity.Transform) entity.Transform
}

var modeRules = map[entity.Mode]modeRule{
	// (кадр 0, кадр t); T_t = ΔT
	entity.Direct: {
		pair: func(s *Stabilizer, current *image.Gray, index int) (entity.FramePair, error) {
			return s.framePair(s.reference, 0, current, index), nil
		},
		compose:  func(_, delta entity.Transform) entity.Transform { return delta },
		fallback: func(running entity.Transform) entity.Transform { return running },
	},
	// (кадр t-1, кадр t); T_t = ΔT ∘ T_{t-1}
	entity.TrackRef: {
		pair: func(s *Stabilizer, current *image.Gray, index int) (entity.FramePair, error) {
			return s.framePair(s.previous, index-1, current, index), nil
		},
		compose:  func(running, delta entity.Transform) entity.Transform { return delta.Mul(running) },
		fallback: func(entity.Transform) entity.Transform { return entity.Identity() },
	},
	// (кадр 0, кадр t, возвращённый через T_{t-1}); T_t = T_{t-1} ∘ ΔT
	entity.WarpBack: {
		pair: func(s *Stabilizer, current *image.Gray, index int) (entity.FramePair, error) {
			warped, err := s.ops.Warp(current, s.running)
			if err != nil {
				return entity.FramePair{}, fmt.Errorf("warp back: %w", err)
			}
			gray, err := s.ops.Gray(warped)
			if err != nil {
				return entity.FramePair{}, fmt.Errorf("warp back: %w", err)
			}
			pair := s.framePair(s.reference, 0, gray, index)
			pair.Raw = current
			return pair, nil
		},
		compose:  func(running, delta entity.Transform) entity.Transform { return running.Mul(delta) },
		fallback: func(entity.Transform) entity.Transform { return entity.Identity() },
	},
}

// NewStabilizer создаёт стабилизатор. Первый кадр становится опорным.
func NewStabilizer(first image.Image, opts StabilizerOptions, estimator port.MotionEstimator, ops port.ImageOps) (*Stabilizer, error) {
	if estimator == nil || ops == nil {
		return nil, errors.New("stabilizer: estimator and image ops are required")
	}
	if _, ok := modeRules[opts.Mode]; !ok {
		return nil, fmt.Errorf("stabilizer: unsupported mode %s", opts.Mode)
	}
	gray, err := ops.Gray(first)
	if err != nil {
		return nil, fmt.Errorf("stabilizer: reference frame: %w", err)
	}
	gray = own(first, gray)
	return &Stabilizer{
		opts:      opts,
		estimator: estimator,
		ops:       ops,
		reference: gray,
		previous:  gray,
		running:   entity.Identity(),
	}, nil
}

func (s *Stabilizer) framePair(ref *image.Gray, refIndex int, current *image.Gray, index int) entity.FramePair {
	return entity.FramePair{
		Reference:      ref,
		Current:        current,
		ReferenceIndex: refIndex,
		CurrentIndex:   index,
		Prior:          s.running,
		Warping:        s.opts.Warping,
	}
}

// StabilizeNext стабилизирует очередной кадр. Ошибки отдельного кадра не
// прерывают поток: они возвращаются в Result.Recovered, а вместо оценки
// используется запасное преобразование режима. Возвращаемая ошибка означает
// нарушение инварианта, после которого продолжать сессию нельзя.
func (s *Stabilizer) StabilizeNext(frame image.Image) (*Result, error) {
	gray, err := s.ops.Gray(frame)
	if err != nil {
		return nil, fmt.Errorf("stabilize: %w", err)
	}
	if gray.Bounds().Size() != s.reference.Bounds().Size() {
		return nil, fmt.Errorf("stabilize: %v vs %v: %w",
			gray.Bounds().Size(), s.reference.Bounds().Size(), entity.ErrFrameSize)
	}

	gray = own(frame, gray)

	rule := modeRules[s.opts.Mode]
	index := s.index + 1

	var recovered error
	pair, err := rule.pair(s, gray, index)
	if err != nil {
		return nil, fmt.Errorf("stabilize frame %d: %w", index, err)
	}

	delta, err := s.estimator.Estimate(pair)
	switch {
	case err == nil:
	case entity.IsRecoverable(err):
		recovered = err
		delta = rule.fallback(s.running)
	default:
		return nil, fmt.Errorf("stabilize frame %d: %w", index, err)
	}

	next := rule.compose(s.running, delta)
	if !next.Valid() {
		recovered = errors.Join(recovered, fmt.Errorf("composed transform %s: %w", next, entity.ErrDegenerateGeometry))
		next = s.running
	}
	next = next.Normalize()

	out, err := s.ops.Warp(frame, next)
	if err != nil {
		return nil, fmt.Errorf("stabilize frame %d: %w", index, err)
	}
	s.running, s.index, s.previous = next, index, gray

	if s.opts.Visualize {
		vis, err := s.estimator.Visualize(frame, s.running)
		if err != nil {
			recovered = errors.Join(recovered, fmt.Errorf("visualize: %w", err))
		} else {
			s.visualization = vis
		}
	}

	return &Result{
		Frame:     out,
		Transform: s.running,
		Delta:     delta,
		Index:     s.index,
		Recovered: recovered,
	}, nil
}

// own копирует серый кадр, если это сам кадр вызывающего.
func own(frame image.Image, gray *image.Gray) *image.Gray {
	if g, ok := frame.(*image.Gray); !ok || g != gray {
		return gray
	}
	cp := image.NewGray(gray.Rect)
	for y := gray.Rect.Min.Y; y < gray.Rect.Max.Y; y++ {
		i := gray.PixOffset(gray.Rect.Min.X, y)
		j := cp.PixOffset(gray.Rect.Min.X, y)
		copy(cp.Pix[j:j+gray.Rect.Dx()], gray.Pix[i:i+gray.Rect.Dx()])
	}
	return cp
}

// Visualization возвращает визуализацию последнего кадра или nil.
func (s *Stabilizer) Visualization() image.Image {
	return s.visualization
}

// Transform возвращает текущее накопленное преобразование.
func (s *Stabilizer) Transform() entity.Transform {
	return s.running
}

// Frames возвращает число стабилизированных кадров без учёта опорного.
func (s *Stabilizer) Frames() int {
	return s.index
}

// Mode возвращает режим стабилизации.
func (s *Stabilizer) Mode() entity.Mode {
	return s.opts.Mode
}

// Warping возвращает группу преобразований.
func (s *Stabilizer) Warping() entity.WarpingGroup {
	return s.opts.Warping
}

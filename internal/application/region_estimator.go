package app

import (
	"errors"
	"fmt"
	"image"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/homography"
	"vision-stab/internal/domain/port"
)

// snapshot состояние областей на конкретном кадре.
type snapshot struct {
	index  int
	bright entity.RegionSet
	dark   entity.RegionSet
}

// RegionEstimator оценивает движение по экстремальным областям: области
// ведутся трекером, соответствия строятся по идентификаторам.
type RegionEstimator struct {
	tracker  *RegionTracker
	renderer port.OverlayRenderer
	fitter   port.TransformFitter
	opts     homography.Options

	anchor *snapshot
	latest *snapshot
	pairs  []entity.Correspondence
}

// NewRegionEstimator создаёт оценщик. renderer может быть nil, тогда
// визуализация недоступна.
func NewRegionEstimator(tracker *RegionTracker, renderer port.OverlayRenderer, opts homography.Options) *RegionEstimator {
	return &RegionEstimator{
		tracker:  tracker,
		renderer: renderer,
		fitter:   homography.Fitter{},
		opts:     opts,
	}
}

// WithFitter заменяет подбор преобразования по соответствиям.
func (e *RegionEstimator) WithFitter(fitter port.TransformFitter) *RegionEstimator {
	if fitter != nil {
		e.fitter = fitter
	}
	return e
}

var _ port.MotionEstimator = (*RegionEstimator)(nil)

func (e *RegionEstimator) take(index int) *snapshot {
	return &snapshot{index: index, bright: e.tracker.Bright(), dark: e.tracker.Dark()}
}

func (e *RegionEstimator) lookup(index int) (*snapshot, bool) {
	for _, s := range []*snapshot{e.anchor, e.latest} {
		if s != nil && s.index == index {
			return s, true
		}
	}
	return nil, false
}

// Estimate реализует port.MotionEstimator. Если в паре есть Raw, области
// ведутся по непреобразованным кадрам, а их положения переводятся в
// координаты Current через обратное к pair.Prior.
func (e *RegionEstimator) Estimate(pair entity.FramePair) (entity.Transform, error) {
	if pair.Reference == nil || pair.Current == nil {
		return entity.Identity(), errors.New("region estimator: empty frame pair")
	}
	current := pair.Current
	if pair.Raw != nil {
		current = pair.Raw
	}

	if e.tracker.Frames() == 0 {
		if err := e.tracker.Update(pair.Reference); err != nil {
			return entity.Identity(), fmt.Errorf("region estimator: bootstrap: %w", err)
		}
		e.anchor = e.take(pair.ReferenceIndex)
		e.latest = e.anchor
	}

	ref, ok := e.lookup(pair.ReferenceIndex)
	if !ok {
		return entity.Identity(), fmt.Errorf("region estimator: frame %d: %w", pair.ReferenceIndex, entity.ErrNoSnapshot)
	}

	if err := e.tracker.Update(current); err != nil {
		return entity.Identity(), fmt.Errorf("region estimator: frame %d: %w", pair.CurrentIndex, err)
	}
	e.latest = e.take(pair.CurrentIndex)
	e.pairs = append(entity.Match(ref.bright, e.latest.bright), entity.Match(ref.dark, e.latest.dark)...)

	h, err := e.fit(pair)
	if ref == e.anchor {
		e.extendAnchor(pair, h, err)
	}
	if err != nil {
		return entity.Identity(), fmt.Errorf("region estimator: frame %d: %w", pair.CurrentIndex, err)
	}
	return h, nil
}

// fit подбирает преобразование по текущим соответствиям.
func (e *RegionEstimator) fit(pair entity.FramePair) (entity.Transform, error) {
	if len(e.pairs) == 0 {
		return entity.Identity(), entity.ErrTrackingLost
	}
	from, to := entity.SplitCorrespondences(e.pairs)
	if pair.Raw != nil {
		inv, err := pair.Prior.Inverse()
		if err != nil {
			return entity.Identity(), fmt.Errorf("prior %s: %w", pair.Prior, entity.ErrDegenerateGeometry)
		}
		from, to = mapTargets(from, to, inv)
	}
	return e.fitter.Fit(from, to, pair.Warping, e.camera(pair.Current.Bounds()))
}

// mapTargets переводит to через h, пары с точками на бесконечности отбрасываются.
func mapTargets(from, to []entity.Point, h entity.Transform) ([]entity.Point, []entity.Point) {
	keptFrom := make([]entity.Point, 0, len(from))
	keptTo := make([]entity.Point, 0, len(to))
	for i := range to {
		p, ok := h.Apply(to[i])
		if !ok {
			continue
		}
		keptFrom = append(keptFrom, from[i])
		keptTo = append(keptTo, p)
	}
	return keptFrom, keptTo
}

// extendAnchor добавляет в опорный снимок области, найденные повторным
// детектированием. Их центроиды переводятся в координаты опорного кадра
// обратным к преобразованию опорный → непреобразованный текущий кадр.
func (e *RegionEstimator) extendAnchor(pair entity.FramePair, h entity.Transform, fitErr error) {
	fresh := e.tracker.Reseeded()
	if len(fresh) == 0 {
		return
	}

	toRaw := h
	switch {
	case fitErr != nil:
		toRaw = pair.Prior
	case pair.Raw != nil:
		toRaw = pair.Prior.Mul(h)
	}
	back, err := toRaw.Inverse()
	if err != nil {
		return
	}

	for _, r := range fresh {
		c, ok := back.Apply(r.Centroid)
		if !ok {
			continue
		}
		r.Centroid = c
		if r.Polarity == entity.Dark {
			e.anchor.dark = append(e.anchor.dark, r)
		} else {
			e.anchor.bright = append(e.anchor.bright, r)
		}
	}
}

// camera подставляет центр кадра и фокус по большей стороне, если модель
// камеры не задана явно.
func (e *RegionEstimator) camera(bounds image.Rectangle) homography.Options {
	opts := e.opts
	if opts.Focal <= 0 {
		w, h := bounds.Dx(), bounds.Dy()
		opts.Focal = float64(max(w, h))
		opts.Center = entity.Point{
			X: float64(bounds.Min.X) + float64(w-1)/2,
			Y: float64(bounds.Min.Y) + float64(h-1)/2,
		}
	}
	return opts
}

// Visualize реализует port.MotionEstimator.
func (e *RegionEstimator) Visualize(frame image.Image, running entity.Transform) (image.Image, error) {
	if e.renderer == nil {
		return nil, errors.New("region estimator: overlay renderer is not configured")
	}
	return e.renderer.Render(frame, e.pairs, running)
}

// Correspondences возвращает соответствия последней оценки.
func (e *RegionEstimator) Correspondences() []entity.Correspondence {
	return append([]entity.Correspondence(nil), e.pairs...)
}

// Tracker возвращает трекер областей.
func (e *RegionEstimator) Tracker() *RegionTracker {
	return e.tracker
}

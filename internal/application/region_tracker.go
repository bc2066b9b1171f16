package app

import (
	"fmt"
	"image"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

// TrackerOptions параметры трекера областей.
type TrackerOptions struct {
	// ReseedBelow запускает повторное детектирование, когда живых областей
	// обеих полярностей меньше этого числа. 0 отключает.
	ReseedBelow int
	// ReseedDistance минимальное расстояние новой области до живой.
	ReseedDistance float64
}

// RegionTracker ведёт области обеих полярностей от кадра к кадру: центроиды
// переносятся трекером точек, статистика обновляется детектором на новых местах.
type RegionTracker struct {
	detector port.RegionDetector
	points   port.PointTracker
	opts     TrackerOptions

	frames   int
	nextID   int
	lost     int
	bright   entity.RegionSet
	dark     entity.RegionSet
	reseeded entity.RegionSet
	last     *image.Gray
}

// defaultReseedDistance расстояние подавления дублей при повторном детектировании.
const defaultReseedDistance = 8

// NewRegionTracker создаёт трекер для одной видеосессии.
func NewRegionTracker(detector port.RegionDetector, points port.PointTracker, opts TrackerOptions) *RegionTracker {
	if opts.ReseedDistance <= 0 {
		opts.ReseedDistance = defaultReseedDistance
	}
	return &RegionTracker{
		detector: detector,
		points:   points,
		opts:     opts,
		nextID:   1,
	}
}

// Update обрабатывает очередной кадр. Первый кадр запускает полное
// детектирование, последующие переносят уже найденные области.
func (t *RegionTracker) Update(img *image.Gray) error {
	if img == nil {
		return fmt.Errorf("region tracker: nil image")
	}
	t.reseeded = nil

	if t.frames == 0 {
		bright, err := t.detect(img, entity.Bright)
		if err != nil {
			return err
		}
		dark, err := t.detect(img, entity.Dark)
		if err != nil {
			return err
		}
		t.bright, t.dark, t.lost = bright, dark, 0
	} else {
		bright, lostBright, err := t.track(t.bright, img, entity.Bright)
		if err != nil {
			return err
		}
		dark, lostDark, err := t.track(t.dark, img, entity.Dark)
		if err != nil {
			return err
		}
		t.bright, t.dark, t.lost = bright, dark, lostBright+lostDark

		if t.opts.ReseedBelow > 0 && len(t.bright)+len(t.dark) < t.opts.ReseedBelow {
			if err := t.reseed(img); err != nil {
				return err
			}
		}
	}

	t.frames++
	t.last = img
	return nil
}

// detect полное детектирование с присвоением новых идентификаторов.
func (t *RegionTracker) detect(img *image.Gray, polarity entity.Polarity) (entity.RegionSet, error) {
	regions, err := t.detector.Detect(img, polarity)
	if err != nil {
		return nil, fmt.Errorf("detect %s regions: %w", polarity, err)
	}
	for i := range regions {
		regions[i].ID = t.nextID
		regions[i].Polarity = polarity
		t.nextID++
	}
	return regions, nil
}

// track переносит центроиды на новый кадр, отбрасывает потерянные точки
// и обновляет статистику оставшихся областей.
func (t *RegionTracker) track(set entity.RegionSet, img *image.Gray, polarity entity.Polarity) (entity.RegionSet, int, error) {
	if len(set) == 0 {
		return nil, 0, nil
	}

	moved, status, err := t.points.Track(t.last, img, set.Centroids())
	if err != nil {
		return nil, 0, fmt.Errorf("track %s centroids: %w", polarity, err)
	}
	if len(moved) != len(set) || len(status) != len(set) {
		return nil, 0, fmt.Errorf("track %s centroids: %d regions, %d points, %d flags: %w",
			polarity, len(set), len(moved), len(status), entity.ErrCountMismatch)
	}

	survivors := make(entity.RegionSet, 0, len(set))
	for i, r := range set {
		if !status[i] {
			continue
		}
		r.Centroid = moved[i]
		survivors = append(survivors, r)
	}

	refreshed, err := t.detector.Retrieve(img, survivors, polarity)
	if err != nil {
		return nil, 0, fmt.Errorf("retrieve %s regions: %w", polarity, err)
	}
	if err := checkRetrieved(survivors, refreshed); err != nil {
		return nil, 0, fmt.Errorf("retrieve %s regions: %w", polarity, err)
	}
	return refreshed, len(set) - len(refreshed), nil
}

// checkRetrieved проверяет, что детектор не добавил и не переименовал области.
func checkRetrieved(sent, got entity.RegionSet) error {
	if len(got) > len(sent) {
		return fmt.Errorf("%d regions in, %d out: %w", len(sent), len(got), entity.ErrCountMismatch)
	}
	known := sent.ByID()
	seen := make(map[int]bool, len(got))
	for _, r := range got {
		if _, ok := known[r.ID]; !ok || seen[r.ID] {
			return fmt.Errorf("unexpected region id %d: %w", r.ID, entity.ErrCountMismatch)
		}
		seen[r.ID] = true
	}
	return nil
}

// reseed добавляет свежие области вдали от уже отслеживаемых.
func (t *RegionTracker) reseed(img *image.Gray) error {
	for _, polarity := range []entity.Polarity{entity.Bright, entity.Dark} {
		fresh, err := t.detector.Detect(img, polarity)
		if err != nil {
			return fmt.Errorf("reseed %s regions: %w", polarity, err)
		}
		set := &t.bright
		if polarity == entity.Dark {
			set = &t.dark
		}
		for _, r := range fresh {
			if nearAny(*set, r.Centroid, t.opts.ReseedDistance) {
				continue
			}
			r.ID = t.nextID
			r.Polarity = polarity
			t.nextID++
			*set = append(*set, r)
			t.reseeded = append(t.reseeded, r)
		}
	}
	return nil
}

func nearAny(set entity.RegionSet, p entity.Point, dist float64) bool {
	for _, r := range set {
		if r.Centroid.Dist(p) < dist {
			return true
		}
	}
	return false
}

// Bright возвращает копию текущих светлых областей.
func (t *RegionTracker) Bright() entity.RegionSet {
	return t.bright.Clone()
}

// Dark возвращает копию текущих тёмных областей.
func (t *RegionTracker) Dark() entity.RegionSet {
	return t.dark.Clone()
}

// Reseeded возвращает области, добавленные повторным детектированием
// на последнем кадре.
func (t *RegionTracker) Reseeded() entity.RegionSet {
	return t.reseeded.Clone()
}

// Frames возвращает число обработанных кадров.
func (t *RegionTracker) Frames() int {
	return t.frames
}

// Lost возвращает число областей, потерянных на последнем кадре.
func (t *RegionTracker) Lost() int {
	return t.lost
}

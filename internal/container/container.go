package container

import (
	"image"

	"vision-stab/config"
	app "vision-stab/internal/application"
	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/homography"
	"vision-stab/internal/domain/port"
	"vision-stab/internal/infrastructure/vision"
)

// Backend набор реализаций портов обработки кадров.
type Backend struct {
	Ops      port.ImageOps
	Points   port.PointTracker
	Detector port.RegionDetector
	Overlay  port.OverlayRenderer
	Fitter   port.TransformFitter
}

type Container struct {
	Config               *config.Config
	Backend              Backend
	StabilizationService *app.StabilizationService
}

func New(cfg *config.Config, sessions port.SessionRepository) *Container {
	backend := NewBackend(cfg)
	c := &Container{
		Config:  cfg,
		Backend: backend,
	}
	c.StabilizationService = app.NewStabilizationService(sessions, c.NewStabilizer)
	return c
}

// NewBackend собирает реализации портов по cfg.Backend.
func NewBackend(cfg *config.Config) Backend {
	detector := vision.NewExtremalDetector()
	if cfg.LevelStep > 0 {
		detector.LevelStep = cfg.LevelStep
	}
	if cfg.MinArea > 0 {
		detector.MinArea = cfg.MinArea
	}

	backend := Backend{Detector: detector, Overlay: vision.NewOverlay(), Fitter: homography.Fitter{}}
	if cfg.Backend == config.BackendOpenCV {
		cv := vision.NewOpenCV()
		backend.Ops, backend.Points, backend.Fitter = cv, cv, cv
		return backend
	}

	matcher := vision.NewBlockMatcher()
	if cfg.TrackWindow > 0 {
		matcher.Window = cfg.TrackWindow
	}
	if cfg.TrackSearch > 0 {
		matcher.Search = cfg.TrackSearch
	}
	backend.Ops, backend.Points = vision.NewNativeImaging(), matcher
	return backend
}

// NewEstimator создаёт оценщик движения по областям для одной сессии.
func (c *Container) NewEstimator() *app.RegionEstimator {
	tracker := app.NewRegionTracker(c.Backend.Detector, c.Backend.Points, app.TrackerOptions{
		ReseedBelow:    c.Config.ReseedBelow,
		ReseedDistance: c.Config.ReseedDistance,
	})

	opts := homography.DefaultOptions()
	if c.Config.Threshold > 0 {
		opts.Threshold = c.Config.Threshold
	}
	if c.Config.Iterations > 0 {
		opts.Iterations = c.Config.Iterations
	}
	opts.Seed = c.Config.Seed
	return app.NewRegionEstimator(tracker, c.Backend.Overlay, opts).WithFitter(c.Backend.Fitter)
}

// NewStabilizer создаёт стабилизатор с опорным кадром first.
func (c *Container) NewStabilizer(first image.Image, settings entity.Settings) (*app.Stabilizer, error) {
	return app.NewStabilizer(first, app.StabilizerOptions{
		Mode:      settings.Mode,
		Warping:   settings.Warping,
		Visualize: settings.Visualize,
	}, c.NewEstimator(), c.Backend.Ops)
}

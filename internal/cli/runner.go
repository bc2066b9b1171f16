package cli

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	app "vision-stab/internal/application"
	"vision-stab/internal/container"
	"vision-stab/internal/domain/entity"
	"vision-stab/internal/infrastructure/report"
)

// Runner стабилизирует поток кадров из файлов и пишет результат в каталог.
type Runner struct {
	container *container.Container
	settings  entity.Settings
	outDir    string
	plotPath  string

	stab       *app.Stabilizer
	trajectory *report.Trajectory
	fallbacks  int
}

// NewRunner создаёт обработчик. plotPath может быть пустым.
func NewRunner(c *container.Container, settings entity.Settings, outDir, plotPath string) (*Runner, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if settings.Visualize {
		if err := os.MkdirAll(filepath.Join(outDir, "viz"), 0o755); err != nil {
			return nil, fmt.Errorf("create visualization dir: %w", err)
		}
	}
	title := fmt.Sprintf("Camera trajectory (%s, %s)", settings.Mode, settings.Warping)
	return &Runner{
		container:  c,
		settings:   settings,
		outDir:     outDir,
		plotPath:   plotPath,
		trajectory: report.NewTrajectory(title),
	}, nil
}

// Process обрабатывает один кадр. Первый кадр становится опорным.
// Ошибка чтения кадра допускает повтор, остальные оборачиваются в fatalError.
func (r *Runner) Process(path string) error {
	frame, err := loadFrame(path)
	if err != nil {
		return err
	}
	if err := r.process(path, frame); err != nil {
		return &fatalError{err: err}
	}
	return nil
}

func (r *Runner) process(path string, frame image.Image) error {
	out := outputPath(r.outDir, path)

	if r.stab == nil {
		stab, err := r.container.NewStabilizer(frame, r.settings)
		if err != nil {
			return err
		}
		r.stab = stab
		log.Printf("Reference frame %s (%dx%d), mode=%s warping=%s",
			filepath.Base(path), frame.Bounds().Dx(), frame.Bounds().Dy(), r.settings.Mode, r.settings.Warping)
		return saveFrame(out, frame)
	}

	res, err := r.stab.StabilizeNext(frame)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if res.Recovered != nil {
		r.fallbacks++
		log.Printf("Frame %d (%s): fallback: %v", res.Index, filepath.Base(path), res.Recovered)
	}
	r.trajectory.Add(res.Index, res.Transform, res.Recovered != nil)

	if err := saveFrame(out, res.Frame); err != nil {
		return err
	}
	if vis := r.stab.Visualization(); r.settings.Visualize && vis != nil {
		if err := saveFrame(outputPath(filepath.Join(r.outDir, "viz"), path), vis); err != nil {
			return err
		}
	}
	return nil
}

// Finish сохраняет график траектории и печатает итог.
func (r *Runner) Finish() error {
	frames := 0
	if r.stab != nil {
		frames = r.stab.Frames()
	}
	log.Printf("Stabilized %d frames, %d fallbacks", frames, r.fallbacks)

	if r.plotPath == "" || frames == 0 {
		return nil
	}
	if err := r.trajectory.Save(r.plotPath); err != nil {
		return err
	}
	log.Printf("Trajectory plot saved to %s", r.plotPath)
	return nil
}

// Trajectory возвращает накопленную траекторию.
func (r *Runner) Trajectory() *report.Trajectory {
	return r.trajectory
}

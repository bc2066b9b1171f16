package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"vision-stab/internal/domain/entity"
)

// Бэкенды обработки кадров.
const (
	BackendNative = "native"
	BackendOpenCV = "opencv"
)

type Config struct {
	TelegramToken string
	Backend       string

	Mode      entity.Mode
	Warping   entity.WarpingGroup
	Visualize bool

	// Детектор и трекер
	LevelStep      int
	MinArea        int
	ReseedBelow    int
	ReseedDistance float64
	TrackWindow    int
	TrackSearch    int

	// RANSAC
	Threshold  float64
	Iterations int
	Seed       int64
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		Backend:       strings.ToLower(getEnv("STAB_BACKEND", BackendNative)),
	}

	var err error
	if cfg.Mode, err = entity.ParseMode(getEnv("STAB_MODE", entity.Direct.String())); err != nil {
		return nil, fmt.Errorf("STAB_MODE: %w", err)
	}
	if cfg.Warping, err = entity.ParseWarpingGroup(getEnv("STAB_WARPING", entity.Homography.String())); err != nil {
		return nil, fmt.Errorf("STAB_WARPING: %w", err)
	}
	if cfg.Visualize, err = strconv.ParseBool(getEnv("STAB_VISUALIZE", "false")); err != nil {
		return nil, fmt.Errorf("STAB_VISUALIZE: %w", err)
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"STAB_LEVEL_STEP", 8, &cfg.LevelStep},
		{"STAB_MIN_AREA", 30, &cfg.MinArea},
		{"STAB_RESEED_BELOW", 0, &cfg.ReseedBelow},
		{"STAB_TRACK_WINDOW", 7, &cfg.TrackWindow},
		{"STAB_TRACK_SEARCH", 8, &cfg.TrackSearch},
		{"STAB_RANSAC_ITERATIONS", 2000, &cfg.Iterations},
	}
	for _, v := range ints {
		if *v.dst, err = strconv.Atoi(getEnv(v.key, strconv.Itoa(v.def))); err != nil {
			return nil, fmt.Errorf("%s: %w", v.key, err)
		}
		if *v.dst < 0 {
			return nil, fmt.Errorf("%s: must not be negative", v.key)
		}
	}

	if cfg.ReseedDistance, err = strconv.ParseFloat(getEnv("STAB_RESEED_DISTANCE", "8"), 64); err != nil {
		return nil, fmt.Errorf("STAB_RESEED_DISTANCE: %w", err)
	}
	if cfg.Threshold, err = strconv.ParseFloat(getEnv("STAB_RANSAC_THRESHOLD", "3"), 64); err != nil {
		return nil, fmt.Errorf("STAB_RANSAC_THRESHOLD: %w", err)
	}
	if cfg.Seed, err = strconv.ParseInt(getEnv("STAB_RANSAC_SEED", "1"), 10, 64); err != nil {
		return nil, fmt.Errorf("STAB_RANSAC_SEED: %w", err)
	}

	switch cfg.Backend {
	case BackendNative, BackendOpenCV:
	default:
		return nil, fmt.Errorf("STAB_BACKEND: unknown backend %q", cfg.Backend)
	}

	return cfg, nil
}

// Settings возвращает параметры стабилизации по умолчанию для новых сессий.
func (c *Config) Settings() entity.Settings {
	return entity.Settings{Mode: c.Mode, Warping: c.Warping, Visualize: c.Visualize}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

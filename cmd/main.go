package main

import (
	"log"

	"vision-stab/config"
	telegram "vision-stab/internal/api"
	"vision-stab/internal/container"
	"vision-stab/internal/infrastructure/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	// Создаём хранилище сессий
	sessions := storage.NewMemorySessionRepository()

	// Собираем сервисы приложения
	appContainer := container.New(cfg, sessions)
	log.Printf("Backend: %s, default mode: %s, warping: %s", cfg.Backend, cfg.Mode, cfg.Warping)

	// Создаём бота
	bot, err := telegram.NewBot(cfg.TelegramToken, appContainer.StabilizationService, cfg.Settings())
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	log.Println("Bot is running...")
	if err := bot.Run(); err != nil {
		log.Fatalf("Bot error: %v", err)
	}
}

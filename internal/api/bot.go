package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"math"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "vision-stab/internal/application"
	"vision-stab/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я бот для стабилизации кадров.

📸 Начните сессию и присылайте кадры по одному: первый станет опорным, остальные я выровняю по нему.

📋 Команды:
/stabilize [режим] [группа] [viz] — начать сессию
/help — справка
/stop — завершить сессию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте /stabilize
2️⃣ Пришлите опорный кадр
3️⃣ Присылайте следующие кадры того же размера, бот вернёт выровненные

⚙️ Режимы: direct, track_ref, warp_back
📐 Группы: homography, rot_homography, affine, rigid, translation
🎨 viz — дополнительно присылать визуализацию соответствий

Пример: /stabilize warp_back rigid viz

📋 Команды:
/stabilize — начать сессию
/stop — завершить сессию`

	msgAwaitingReference = "📸 Сессия %s/%s начата. Отправьте опорный кадр."
	msgReferenceAccepted = "✅ Опорный кадр принят (%dx%d). Присылайте следующие кадры."
	msgStopped           = "❌ Сессия завершена. Отправьте /stabilize для новой."
	msgNoSession         = "📸 Сначала начните сессию командой /stabilize."
	msgSendPhoto         = "📸 Пожалуйста, отправьте кадр фотографией."
	msgUnknownCommand    = "❓ Неизвестная команда. Используйте /help для справки."
	msgBadArguments      = "⚠️ %v\n\nИспользуйте /help для справки."
	msgFrameResult       = "🎯 Кадр %d: сдвиг (%.1f, %.1f), поворот %.2f°"
	msgFrameFallback     = "⚠️ Кадр %d: движение не оценено (%v), использовано запасное преобразование."
	msgSessionFailed     = "⚠️ Сессия прервана: %v\nОтправьте /stabilize для новой."
	msgProcessingError   = "⚠️ Не удалось обработать изображение. Попробуйте другой кадр."
)

// Bot представляет Telegram-бота
type Bot struct {
	api      *tgbotapi.BotAPI
	service  *app.StabilizationService
	defaults entity.Settings
}

// NewBot создаёт нового бота
func NewBot(token string, service *app.StabilizationService, defaults entity.Settings) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		service:  service,
		defaults: defaults,
	}, nil
}

// Run запускает основной цикл обработки сообщений
func (b *Bot) Run() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	ctx := context.Background()

	for update := range updates {
		if update.Message == nil {
			continue
		}

		b.handleMessage(ctx, update.Message)
	}

	return nil
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// Обработка фото
	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	// Текстовое сообщение (не команда)
	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		if _, err := b.service.Cancel(ctx, msg.From.ID, msg.Chat.ID); err != nil {
			log.Printf("Error resetting session: %v", err)
		}
		b.sendMessage(msg.Chat.ID, msgStart)

	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)

	case "stabilize":
		settings, err := parseSettings(msg.CommandArguments(), b.defaults)
		if err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf(msgBadArguments, err))
			return
		}
		session, err := b.service.Begin(ctx, msg.From.ID, msg.Chat.ID, settings)
		if err != nil {
			log.Printf("Error starting session: %v", err)
			b.sendMessage(msg.Chat.ID, msgProcessingError)
			return
		}
		log.Printf("Session %s started: user=%d mode=%s warping=%s", session.ID, msg.From.ID, settings.Mode, settings.Warping)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf(msgAwaitingReference, settings.Mode, settings.Warping))

	case "stop", "cancel":
		if _, err := b.service.Cancel(ctx, msg.From.ID, msg.Chat.ID); err != nil {
			log.Printf("Error stopping session: %v", err)
		}
		b.sendMessage(msg.Chat.ID, msgStopped)

	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

// handlePhoto обрабатывает входящий кадр
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	// Получаем файл с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(photo.FileID)
	if err != nil {
		log.Printf("Error downloading photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	frame, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		log.Printf("Error decoding photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	out, err := b.service.Submit(ctx, msg.From.ID, msg.Chat.ID, frame)
	switch {
	case errors.Is(err, app.ErrNoActiveSession):
		b.sendMessage(msg.Chat.ID, msgNoSession)
		return
	case err != nil:
		log.Printf("Stabilization failed for user %d: %v", msg.From.ID, err)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf(msgSessionFailed, err))
		return
	}

	if out.Reference {
		size := frame.Bounds().Size()
		b.sendMessage(msg.Chat.ID, fmt.Sprintf(msgReferenceAccepted, size.X, size.Y))
		return
	}

	res := out.Result
	b.sendPhoto(msg.Chat.ID, res.Frame, frameCaption(res))
	if out.Session.Settings.Visualize && out.Visualization != nil {
		b.sendPhoto(msg.Chat.ID, out.Visualization, "")
	}
}

// frameCaption подпись к стабилизированному кадру
func frameCaption(res *app.Result) string {
	if res.Recovered != nil {
		return fmt.Sprintf(msgFrameFallback, res.Index, res.Recovered)
	}
	dx, dy := res.Transform.Offset()
	return fmt.Sprintf(msgFrameResult, res.Index, dx, dy, res.Transform.Angle()*180/math.Pi)
}

// parseSettings разбирает аргументы /stabilize: режим, группу и флаг viz в любом порядке.
func parseSettings(args string, defaults entity.Settings) (entity.Settings, error) {
	settings := defaults
	for _, arg := range strings.Fields(args) {
		if strings.EqualFold(arg, "viz") {
			settings.Visualize = true
			continue
		}
		if mode, err := entity.ParseMode(arg); err == nil {
			settings.Mode = mode
			continue
		}
		if group, err := entity.ParseWarpingGroup(arg); err == nil {
			settings.Warping = group
			continue
		}
		return defaults, fmt.Errorf("неизвестный параметр %q", arg)
	}
	return settings, nil
}

// encodeJPEG кодирует кадр для отправки
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	fileURL := file.Link(b.api.Token)

	resp, err := http.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendPhoto отправляет изображение в формате JPEG
func (b *Bot) sendPhoto(chatID int64, img image.Image, caption string) {
	data, err := encodeJPEG(img)
	if err != nil {
		log.Printf("Error encoding photo: %v", err)
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "frame.jpg", Bytes: data})
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		log.Printf("Error sending photo: %v", err)
	}
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

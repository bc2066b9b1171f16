package entity

import "github.com/google/uuid"

// SessionState состояние сессии стабилизации в диалоге
type SessionState string

const (
	StateIdle              SessionState = "idle"               // Сессия не начата
	StateAwaitingReference SessionState = "awaiting_reference" // Ожидание опорного кадра
	StateStreaming         SessionState = "streaming"          // Кадры стабилизируются
)

// Settings параметры стабилизации, выбранные пользователем
type Settings struct {
	Mode      Mode
	Warping   WarpingGroup
	Visualize bool
}

// DefaultSettings возвращает параметры по умолчанию.
func DefaultSettings() Settings {
	return Settings{Mode: Direct, Warping: Homography}
}

// Session представляет сессию стабилизации одного чата
type Session struct {
	ID       uuid.UUID    // идентификатор сессии для логов
	UserID   int64        // Telegram User ID
	ChatID   int64        // Telegram Chat ID
	State    SessionState // Текущее состояние
	Settings Settings     // Параметры стабилизации
	Frames   int          // Обработано кадров, включая опорный
}

// NewSession создаёт новую сессию в состоянии ожидания команды
func NewSession(userID, chatID int64) *Session {
	return &Session{
		ID:       uuid.New(),
		UserID:   userID,
		ChatID:   chatID,
		State:    StateIdle,
		Settings: DefaultSettings(),
	}
}

// SetState обновляет состояние сессии
func (s *Session) SetState(state SessionState) {
	s.State = state
}

// Restart начинает новую сессию с заданными параметрами
func (s *Session) Restart(settings Settings) {
	s.ID = uuid.New()
	s.Settings = settings
	s.Frames = 0
	s.State = StateAwaitingReference
}

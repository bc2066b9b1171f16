package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

// ErrNoActiveSession кадр пришёл вне сессии стабилизации.
var ErrNoActiveSession = errors.New("no active stabilization session")

// StabilizerFactory создаёт стабилизатор для нового опорного кадра.
type StabilizerFactory func(first image.Image, settings entity.Settings) (*Stabilizer, error)

type stream struct {
	mu   sync.Mutex
	stab *Stabilizer
}

// StabilizationService ведёт сессии стабилизации по пользователям.
type StabilizationService struct {
	repo    port.SessionRepository
	factory StabilizerFactory

	mu      sync.Mutex
	streams map[int64]*stream
}

// FrameOutput результат обработки кадра в сессии.
type FrameOutput struct {
	Session       *entity.Session
	Result        *Result
	Visualization image.Image
	Reference     bool // кадр принят как опорный
}

// NewStabilizationService создаёт сервис сессий стабилизации.
func NewStabilizationService(repo port.SessionRepository, factory StabilizerFactory) *StabilizationService {
	return &StabilizationService{
		repo:    repo,
		factory: factory,
		streams: make(map[int64]*stream),
	}
}

func (s *StabilizationService) stream(userID int64) *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[userID]
	if !ok {
		st = &stream{}
		s.streams[userID] = st
	}
	return st
}

// Get возвращает сессию пользователя.
func (s *StabilizationService) Get(ctx context.Context, userID, chatID int64) (*entity.Session, error) {
	return s.repo.Get(ctx, userID, chatID)
}

// Begin начинает новую сессию: следующий кадр станет опорным.
func (s *StabilizationService) Begin(ctx context.Context, userID, chatID int64, settings entity.Settings) (*entity.Session, error) {
	st := s.stream(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	session.Restart(settings)
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	st.stab = nil
	return session, nil
}

// Cancel завершает сессию и освобождает стабилизатор.
func (s *StabilizationService) Cancel(ctx context.Context, userID, chatID int64) (*entity.Session, error) {
	st := s.stream(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stab = nil
	return s.setState(ctx, userID, chatID, entity.StateIdle)
}

func (s *StabilizationService) setState(ctx context.Context, userID, chatID int64, state entity.SessionState) (*entity.Session, error) {
	session, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	session.SetState(state)
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Submit обрабатывает очередной кадр сессии. Первый кадр после Begin
// становится опорным и возвращается без изменений. Фатальная ошибка
// стабилизатора завершает сессию.
func (s *StabilizationService) Submit(ctx context.Context, userID, chatID int64, frame image.Image) (*FrameOutput, error) {
	if frame == nil {
		return nil, errors.New("empty frame")
	}

	st := s.stream(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	switch session.State {
	case entity.StateAwaitingReference:
		stab, err := s.factory(frame, session.Settings)
		if err != nil {
			return nil, fmt.Errorf("start stabilizer: %w", err)
		}
		st.stab = stab
		session.SetState(entity.StateStreaming)
		session.Frames = 1
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, err
		}
		return &FrameOutput{
			Session:   session,
			Reference: true,
			Result: &Result{
				Frame:     frame,
				Transform: entity.Identity(),
				Delta:     entity.Identity(),
			},
		}, nil

	case entity.StateStreaming:
		if st.stab == nil {
			return nil, ErrNoActiveSession
		}
		res, err := st.stab.StabilizeNext(frame)
		if err != nil {
			st.stab = nil
			if saveErr := s.repo.UpdateState(ctx, userID, entity.StateIdle); saveErr != nil {
				return nil, errors.Join(err, saveErr)
			}
			return nil, err
		}
		session.Frames = res.Index + 1
		if err := s.repo.Save(ctx, session); err != nil {
			return nil, err
		}
		return &FrameOutput{
			Session:       session,
			Result:        res,
			Visualization: st.stab.Visualization(),
		}, nil

	default:
		return nil, ErrNoActiveSession
	}
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/logging"
	"fairstay-backend/internal/repository"
)

type SessionStore interface {
	PutSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, sessionID string, now time.Time) (domain.Session, error)
	TouchSession(ctx context.Context, sessionID string, now time.Time) (domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type SessionService struct {
	store SessionStore
}

func NewSessionService(store SessionStore) (*SessionService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	return &SessionService{store: store}, nil
}

// Create starts a session. A caller-supplied id is used as is; otherwise a
// UUID is generated.
func (s *SessionService) Create(ctx context.Context, requestedID string) (domain.Session, error) {
	id := strings.TrimSpace(requestedID)
	if id == "" {
		id = newUUID()
	}
	t := now()
	session := domain.Session{
		SessionID:    id,
		CreatedAt:    domain.Millis(t),
		LastActivity: domain.Millis(t),
		TTL:          domain.ExpiryFrom(t),
	}
	if err := s.store.PutSession(ctx, session); err != nil {
		return domain.Session{}, newError(ErrorInternal, "Failed to create session", err)
	}
	logging.Ctx(ctx).Info().Str("session_id", id).Msg("session created")
	return session, nil
}

// Validate confirms the session is live and extends its expiry.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (domain.Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.Session{}, Validation("Session ID is required")
	}
	t := now()
	if _, err := s.store.GetSession(ctx, id, t); err != nil {
		return domain.Session{}, sessionLookupError(err)
	}
	session, err := s.store.TouchSession(ctx, id, t)
	if err != nil {
		return domain.Session{}, sessionLookupError(err)
	}
	return session, nil
}

func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return Validation("Session ID is required")
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return newError(ErrorInternal, "Failed to delete session", err)
	}
	return nil
}

func sessionLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrorNotFound, "Session not found", err)
	}
	return newError(ErrorInternal, "Failed to validate session", err)
}

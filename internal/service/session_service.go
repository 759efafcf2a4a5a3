package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/security"
)

var (
	// ErrSessionNotFound covers both ids that never existed and zombie
	// cookies whose server-side record was destroyed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired means the idle timeout elapsed; the record has
	// already been destroyed by the time the caller sees this.
	ErrSessionExpired = errors.New("session expired")
)

// SessionService mints, validates, rotates and revokes server-side sessions.
// Validity is defined entirely by the presence of the stored record.
type SessionService struct {
	repo        repository.SessionRepository
	idleTimeout time.Duration
	clock       func() time.Time
}

func NewSessionService(repo repository.SessionRepository, idleTimeout time.Duration) *SessionService {
	return &SessionService{repo: repo, idleTimeout: idleTimeout, clock: time.Now}
}

// WithClock replaces the time source. Test hook.
func (s *SessionService) WithClock(clock func() time.Time) *SessionService {
	s.clock = clock
	return s
}

func (s *SessionService) IdleTimeout() time.Duration { return s.idleTimeout }

// Create mints a session with a fresh id and a fresh CSRF token.
func (s *SessionService) Create(ctx context.Context, userID uint, roles []string) (*domain.Session, error) {
	session, err := s.newRecord(userID, roles)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	observability.RecordSessionEvent(ctx, "created")
	return session, nil
}

// Rotate replaces the presented pre-authentication session id with a fresh
// one for the now-authenticated user. Called exactly once per successful
// login; an attacker who fixed the old id holds a token that stops resolving
// the moment the new record is durable. When the presented id is empty or
// unknown this degrades to a plain Create.
func (s *SessionService) Rotate(ctx context.Context, presentedID string, userID uint, roles []string) (*domain.Session, error) {
	if presentedID == "" {
		return s.Create(ctx, userID, roles)
	}
	session, err := s.newRecord(userID, roles)
	if err != nil {
		return nil, err
	}
	err = s.repo.Rotate(presentedID, session)
	if errors.Is(err, repository.ErrSessionNotFound) {
		// Presented cookie pointed at nothing; nothing to invalidate.
		return s.Create(ctx, userID, roles)
	}
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	observability.RecordSessionEvent(ctx, "rotated")
	return session, nil
}

// Validate resolves a presented session id. On success the sliding idle
// window is refreshed. An idle session is destroyed on sight and reported as
// expired, which is terminal.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.repo.FindBySessionID(sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	now := s.clock()
	if session.IdleSince(now, s.idleTimeout) {
		if err := s.repo.DeleteBySessionID(sessionID); err != nil {
			return nil, fmt.Errorf("evict idle session: %w", err)
		}
		observability.RecordSessionEvent(ctx, "expired")
		slog.InfoContext(ctx, "session expired by idle timeout",
			"user_id", session.UserID,
			"idle", now.Sub(session.LastActivity).String(),
		)
		return nil, ErrSessionExpired
	}

	if err := s.repo.Touch(sessionID, now); err != nil {
		return nil, fmt.Errorf("refresh session activity: %w", err)
	}
	session.LastActivity = now
	observability.RecordSessionEvent(ctx, "validated")
	return session, nil
}

// Destroy removes the record unconditionally. Destroying an id that no
// longer resolves is not an error, so logout stays idempotent.
func (s *SessionService) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.repo.DeleteBySessionID(sessionID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	observability.RecordSessionEvent(ctx, "destroyed")
	return nil
}

// DestroyAllForUser revokes every session a user holds. Used when an admin
// changes a user's roles so stale cached role sets cannot outlive the change.
func (s *SessionService) DestroyAllForUser(ctx context.Context, userID uint) (int64, error) {
	n, err := s.repo.DeleteByUserID(userID)
	if err != nil {
		return 0, fmt.Errorf("destroy sessions for user %d: %w", userID, err)
	}
	if n > 0 {
		observability.RecordSessionEvent(ctx, "destroyed")
	}
	return n, nil
}

// PurgeIdle evicts sessions abandoned past the idle threshold. Idle expiry is
// otherwise lazy, so without this sweep an abandoned session would consume
// storage until its next lookup.
func (s *SessionService) PurgeIdle(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.idleTimeout)
	n, err := s.repo.DeleteIdleBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	if n > 0 {
		observability.RecordSessionEvent(ctx, "purged")
		slog.InfoContext(ctx, "purged idle sessions", "count", n)
	}
	return n, nil
}

func (s *SessionService) newRecord(userID uint, roles []string) (*domain.Session, error) {
	sessionID, err := security.NewSessionID()
	if err != nil {
		return nil, err
	}
	csrfToken, err := security.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	now := s.clock()
	return &domain.Session{
		SessionID:    sessionID,
		UserID:       userID,
		Roles:        roles,
		CSRFToken:    csrfToken,
		CreatedAt:    now,
		LastActivity: now,
	}, nil
}

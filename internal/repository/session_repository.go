package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(s *domain.Session) error
	FindBySessionID(sessionID string) (*domain.Session, error)
	Touch(sessionID string, at time.Time) error
	// Rotate stores the replacement record and removes the old one in a
	// single transaction. The new id must be durable before the old id stops
	// resolving, so a crash can never leave the user with zero valid ids and
	// an attacker never gains a window where both ids are unknown states.
	Rotate(oldSessionID string, replacement *domain.Session) error
	DeleteBySessionID(sessionID string) error
	DeleteByUserID(userID uint) (int64, error)
	DeleteIdleBefore(cutoff time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindBySessionID(sessionID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("session_id = ?", sessionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_session_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_session_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_session_id", "success")
	return &s, nil
}

// Touch refreshes the sliding-window activity timestamp. Concurrent touches
// on the same session are last-writer-wins, which is acceptable for an
// activity watermark.
func (r *GormSessionRepository) Touch(sessionID string, at time.Time) error {
	err := r.db.Model(&domain.Session{}).
		Where("session_id = ?", sessionID).
		Update("last_activity", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "touch", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "touch", "success")
	return nil
}

func (r *GormSessionRepository) Rotate(oldSessionID string, replacement *domain.Session) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var old domain.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", oldSessionID).
			First(&old).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := tx.Create(replacement).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Session{}, old.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "session", "rotate", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "rotate", "success")
	return nil
}

// DeleteBySessionID is idempotent: deleting an unknown id is not an error.
func (r *GormSessionRepository) DeleteBySessionID(sessionID string) error {
	err := r.db.Where("session_id = ?", sessionID).Delete(&domain.Session{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_session_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_session_id", "success")
	return nil
}

func (r *GormSessionRepository) DeleteByUserID(userID uint) (int64, error) {
	res := r.db.Where("user_id = ?", userID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_user_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeleteIdleBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("last_activity < ?", cutoff).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_idle_before", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_idle_before", "success")
	return res.RowsAffected, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// GetSession returns nil, nil when the session does not exist.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListSessionsCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("created_at ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list expired sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) ListSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list session ids failed: %w", err)
	}
	return ids, nil
}

func (r *SessionRepository) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sessions failed: %w", err)
	}
	return n, nil
}

// DeleteSession removes the session and its documents in one transaction.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("delete session documents failed: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Session{}).Error; err != nil {
			return fmt.Errorf("delete session failed: %w", err)
		}
		return nil
	})
	return err
}

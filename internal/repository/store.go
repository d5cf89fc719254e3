package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

// GormStore is the MySQL-backed session store.
type GormStore struct {
	*SessionRepository
	*DocumentRepository

	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		SessionRepository:  NewSessionRepository(db),
		DocumentRepository: NewDocumentRepository(db),
		db:                 db,
	}
}

func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Session{}, &model.Document{}); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get mysql sql db failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql failed: %w", err)
	}
	return nil
}

func (s *GormStore) Name() string { return "mysql" }

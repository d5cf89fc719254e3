package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// AddDocument appends doc to its session, assigning the next Position.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *model.Document) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Document{}).Where("session_id = ?", doc.SessionID).Count(&n).Error; err != nil {
			return fmt.Errorf("count session documents failed: %w", err)
		}
		doc.Position = int(n)
		if doc.NERStatus == "" {
			doc.NERStatus = model.NERPending
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create document failed: %w", err)
		}
		return nil
	})
	return err
}

// ListDocuments returns the session's documents in insertion order.
func (r *DocumentRepository) ListDocuments(ctx context.Context, sessionID string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("position ASC").Order("created_at ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

// GetDocument returns nil, nil when the document is not in the session.
func (r *DocumentRepository) GetDocument(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND session_id = ?", docID, sessionID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) UpdateNERStatus(ctx context.Context, docID string, status model.NERStatus) error {
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", docID).Update("ner_status", status).Error; err != nil {
		return fmt.Errorf("update ner status failed: %w", err)
	}
	return nil
}

// SaveEntities stores the entities and marks extraction completed.
func (r *DocumentRepository) SaveEntities(ctx context.Context, docID string, entities []model.Entity) error {
	var doc model.Document
	doc.SetEntities(entities)
	err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", docID).Updates(map[string]any{
		"entities_json": doc.EntitiesJSON,
		"ner_status":    model.NERCompleted,
	}).Error
	if err != nil {
		return fmt.Errorf("save entities failed: %w", err)
	}
	return nil
}

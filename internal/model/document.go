package model

import (
	"encoding/json"
	"time"
)

type NERStatus string

const (
	NERPending    NERStatus = "pending"
	NERProcessing NERStatus = "processing"
	NERCompleted  NERStatus = "completed"
	NERFailed     NERStatus = "failed"
)

// Document is one uploaded file's extracted text. Position records insertion
// order inside the session; it is the order used for tie-breaking answers.
type Document struct {
	ID           string    `gorm:"primaryKey;size:36" json:"doc_id"`
	SessionID    string    `gorm:"size:36;not null;index" json:"session_id"`
	Position     int       `gorm:"not null" json:"position"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	Text         string    `gorm:"type:longtext" json:"-"`
	Size         int64     `json:"size"`
	NERStatus    NERStatus `gorm:"size:16;not null" json:"ner_status"`
	EntitiesJSON string    `gorm:"type:longtext" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Document) TableName() string {
	return "qa_documents"
}

// Entities returns the stored entities; nil when none were saved or the
// payload cannot be parsed.
func (d *Document) Entities() []Entity {
	if d.EntitiesJSON == "" {
		return nil
	}
	var entities []Entity
	if err := json.Unmarshal([]byte(d.EntitiesJSON), &entities); err != nil {
		return nil
	}
	return entities
}

func (d *Document) SetEntities(entities []Entity) {
	if len(entities) == 0 {
		d.EntitiesJSON = "[]"
		return
	}
	b, _ := json.Marshal(entities)
	d.EntitiesJSON = string(b)
}

// DocumentText is one entry of an ordered corpus handed to the answering
// pipeline.
type DocumentText struct {
	ID   string
	Text string
}

type Entity struct {
	Text             string `json:"text"`
	Label            string `json:"label"`
	Start            int    `json:"start"`
	End              int    `json:"end"`
	LabelDescription string `json:"label_description,omitempty"`
}

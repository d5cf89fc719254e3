package model

import "time"

// Session is a corpus: the unit that documents are uploaded into and
// questions are answered against.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Session) TableName() string {
	return "qa_sessions"
}

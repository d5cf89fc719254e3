package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/pkg/textextract"
	"docqa/internal/worker"
)

const (
	UploadStatusSuccess = "success"
	UploadStatusError   = "error"

	defaultMaxFileBytes = 50 << 20
)

type DocumentServiceConfig struct {
	MaxFileBytes      int64
	ExtractionTimeout time.Duration
}

type DocumentService struct {
	store      SessionStore
	index      Index
	cache      AnswerCache
	dispatcher worker.Dispatcher
	cfg        DocumentServiceConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewDocumentService wires the upload path. dispatcher may be nil, in which
// case documents stay in NER status pending.
func NewDocumentService(
	store SessionStore,
	index Index,
	cache AnswerCache,
	dispatcher worker.Dispatcher,
	cfg DocumentServiceConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *DocumentService {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = textextract.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		store:      store,
		index:      index,
		cache:      cache,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *DocumentService) CreateSession(ctx context.Context) (*model.Session, error) {
	session := &model.Session{ID: uuid.NewString(), CreatedAt: s.now()}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", session.ID)
	return session, nil
}

type UploadFile struct {
	Filename string
	Data     []byte
}

type UploadInput struct {
	SessionID string
	Files     []UploadFile
}

type UploadedDocument struct {
	DocID      string `json:"doc_id,omitempty"`
	Filename   string `json:"filename"`
	TextLength int    `json:"text_length"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type UploadResult struct {
	SessionID         string             `json:"session_id"`
	DocumentsUploaded int                `json:"documents_uploaded"`
	Documents         []UploadedDocument `json:"documents"`
	Indexed           bool               `json:"indexed"`
}

// Upload stores every accepted file, reports rejected ones per file, and
// rebuilds the session index when at least one file was stored. A missing
// SessionID creates a new session.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", ErrInvalidInput)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		session, err := s.CreateSession(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
	} else {
		session, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, ErrSessionNotFound
		}
	}

	result := &UploadResult{SessionID: sessionID, Documents: make([]UploadedDocument, 0, len(in.Files))}
	for _, f := range in.Files {
		entry := s.storeFile(ctx, sessionID, f)
		if entry.Status == UploadStatusSuccess {
			result.DocumentsUploaded++
		}
		result.Documents = append(result.Documents, entry)
	}

	if result.DocumentsUploaded == 0 {
		return result, nil
	}

	s.cache.InvalidateAnswers(ctx, sessionID)
	docs, err := s.store.ListDocuments(ctx, sessionID)
	if err != nil {
		s.logger.Warn("load corpus for indexing failed", "session_id", sessionID, "error", err)
		return result, nil
	}
	result.Indexed = s.index.Build(ctx, sessionID, corpusOf(docs))
	return result, nil
}

func (s *DocumentService) storeFile(ctx context.Context, sessionID string, f UploadFile) UploadedDocument {
	name := cleanFilename(f.Filename)
	fail := func(msg string) UploadedDocument {
		s.logger.Warn("upload rejected", "session_id", sessionID, "filename", name, "reason", msg)
		return UploadedDocument{Filename: name, Status: UploadStatusError, Error: msg}
	}

	if name == "" {
		return fail("missing filename")
	}
	if !textextract.Supported(name) {
		return fail(fmt.Sprintf("unsupported file type %q, allowed: %s", strings.ToLower(filepath.Ext(name)), strings.Join(textextract.Extensions(), " ")))
	}
	if int64(len(f.Data)) > s.cfg.MaxFileBytes {
		return fail(fmt.Sprintf("file exceeds %d MB limit", s.cfg.MaxFileBytes>>20))
	}

	text, err := textextract.Extract(ctx, name, f.Data, s.cfg.ExtractionTimeout)
	if err != nil {
		return fail("Extraction failed: " + err.Error())
	}

	length := utf8.RuneCountInString(text)
	doc := &model.Document{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Filename:  name,
		Text:      text,
		Size:      int64(length),
		NERStatus: model.NERPending,
		CreatedAt: s.now(),
	}
	if err := s.store.AddDocument(ctx, doc); err != nil {
		s.logger.Error("store document failed", "session_id", sessionID, "filename", name, "error", err)
		return fail("storing document failed")
	}

	s.dispatchNER(ctx, doc)
	s.logger.Info("document stored", "session_id", sessionID, "doc_id", doc.ID, "filename", name, "text_length", length)
	return UploadedDocument{DocID: doc.ID, Filename: name, TextLength: length, Status: UploadStatusSuccess}
}

func (s *DocumentService) dispatchNER(ctx context.Context, doc *model.Document) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Dispatch(ctx, worker.Job{SessionID: doc.SessionID, DocumentID: doc.ID})
	if err == nil {
		return
	}
	s.logger.Warn("dispatch ner job failed", "doc_id", doc.ID, "error", err)
	s.metrics.IncNERJob(metrics.OutcomeError)
	if err := s.store.UpdateNERStatus(ctx, doc.ID, model.NERFailed); err != nil {
		s.logger.Warn("mark ner failed failed", "doc_id", doc.ID, "error", err)
	}
}

// cleanFilename keeps only the base name so client paths never reach
// storage or logs.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

type DocumentInfo struct {
	DocID      string          `json:"doc_id"`
	Filename   string          `json:"filename"`
	Text       string          `json:"text"`
	TextLength int64           `json:"text_length"`
	AddedAt    time.Time       `json:"added_at"`
	NERStatus  model.NERStatus `json:"ner_status"`
	Entities   []model.Entity  `json:"entities"`
}

type SessionInfo struct {
	SessionID     string         `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	DocumentCount int            `json:"document_count"`
	Documents     []DocumentInfo `json:"documents"`
}

func (s *DocumentService) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	docs, err := s.store.ListDocuments(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &SessionInfo{
		SessionID:     session.ID,
		CreatedAt:     session.CreatedAt,
		DocumentCount: len(docs),
		Documents:     make([]DocumentInfo, 0, len(docs)),
	}
	for i := range docs {
		d := &docs[i]
		info.Documents = append(info.Documents, DocumentInfo{
			DocID:      d.ID,
			Filename:   d.Filename,
			Text:       d.Text,
			TextLength: d.Size,
			AddedAt:    d.CreatedAt,
			NERStatus:  d.NERStatus,
			Entities:   d.Entities(),
		})
	}
	return info, nil
}

// DeleteSession drops the index, cached entries and stored documents
// together.
func (s *DocumentService) DeleteSession(ctx context.Context, id string) error {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	return s.purge(ctx, id)
}

func (s *DocumentService) purge(ctx context.Context, id string) error {
	s.index.Delete(id)
	cleared := s.cache.ClearSession(ctx, id)
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", "session_id", id, "cache_entries", cleared)
	return nil
}

type SessionCount struct {
	ActiveSessions int64    `json:"active_sessions"`
	Sessions       []string `json:"sessions"`
}

func (s *DocumentService) CountSessions(ctx context.Context) (*SessionCount, error) {
	n, err := s.store.CountSessions(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.ListSessionIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &SessionCount{ActiveSessions: n, Sessions: ids}, nil
}

// ExpireSessions deletes sessions created more than ttl ago. A non-positive
// ttl disables expiry.
func (s *DocumentService) ExpireSessions(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	expired, err := s.store.ListSessionsCreatedBefore(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, session := range expired {
		if err := s.purge(ctx, session.ID); err != nil {
			return n, fmt.Errorf("expire session %s failed: %w", session.ID, err)
		}
		n++
	}
	return n, nil
}

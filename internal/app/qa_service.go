package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/ner"
	"docqa/internal/qa"
	"docqa/internal/rag"
)

const (
	defaultMaxQuestionLength = 1000
	unknownSource            = "Unknown"
	noDocumentID             = "None"
)

type QAServiceConfig struct {
	MaxQuestionLength int
	MaxContextLength  int
	// TopK is the default number of chunks returned by Search.
	TopK int
}

// QAService orchestrates question answering over a session: cache, index
// rehydration, RAG-first answering with fallback, and answer entities.
type QAService struct {
	store      SessionStore
	answerer   Answerer
	index      Index
	cache      AnswerCache
	recognizer ner.Recognizer
	cfg        QAServiceConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewQAService wires the question path. recognizer may be nil to disable
// answer entities.
func NewQAService(
	store SessionStore,
	answerer Answerer,
	index Index,
	cache AnswerCache,
	recognizer ner.Recognizer,
	cfg QAServiceConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *QAService {
	if cfg.MaxQuestionLength <= 0 {
		cfg.MaxQuestionLength = defaultMaxQuestionLength
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = rag.DefaultMaxContextLength
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QAService{
		store:      store,
		answerer:   answerer,
		index:      index,
		cache:      cache,
		recognizer: recognizer,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}
}

type AskInput struct {
	SessionID         string
	Question          string
	DocID             string
	HighlightEntities bool
	// MaxContextLength bounds the retrieved context; zero uses the default.
	MaxContextLength int
}

type AskResult struct {
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	SourceDoc  string         `json:"source_doc"`
	Entities   []model.Entity `json:"entities"`
}

// Ask answers from one document when DocID is set, otherwise from the
// whole session. Session-wide answers are cached per question.
func (s *QAService) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if err := s.requireSession(ctx, in.SessionID); err != nil {
		return nil, err
	}
	log := s.logger.With("session_id", in.SessionID)

	if in.DocID != "" {
		doc, err := s.store.GetDocument(ctx, in.SessionID, in.DocID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, ErrDocumentNotFound
		}
		ans := s.answerer.Answer(ctx, in.Question, doc.Text)
		s.metrics.IncAnswer(metrics.PathDocument)
		return s.result(ctx, in, ans, doc.ID), nil
	}

	var cached AskResult
	if s.cache.GetQAResult(ctx, in.SessionID, in.Question, &cached) {
		log.Info("qa cache hit")
		s.metrics.IncAnswer(metrics.PathCache)
		return &cached, nil
	}

	docs, err := s.corpus(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		s.metrics.IncAnswer(metrics.PathEmpty)
		return s.result(ctx, in, model.NoAnswer(), ""), nil
	}

	s.ensureIndex(ctx, in.SessionID, docs)
	ans, via := s.answerer.AnswerFromDocuments(ctx, in.Question, docs, in.SessionID, s.contextLength(in))
	if via == qa.ViaRAG {
		s.metrics.IncAnswer(metrics.PathRAG)
	} else {
		s.metrics.IncAnswer(metrics.PathFallback)
	}

	res := s.result(ctx, in, ans, ans.Source)
	s.cache.CacheQAResult(ctx, in.SessionID, in.Question, res)
	log.Info("question answered", "via", string(via), "confidence", res.Confidence)
	return res, nil
}

type DetailedAnswer struct {
	DocID      string         `json:"doc_id"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Entities   []model.Entity `json:"entities"`
}

type DetailedResult struct {
	Question   string           `json:"question"`
	Answers    []DetailedAnswer `json:"answers"`
	BestAnswer DetailedAnswer   `json:"best_answer"`
}

// AskDetailed answers against every document separately and ranks the
// answers by confidence, ties kept in upload order.
func (s *QAService) AskDetailed(ctx context.Context, in AskInput) (*DetailedResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if err := s.requireSession(ctx, in.SessionID); err != nil {
		return nil, err
	}

	var cached DetailedResult
	if s.cache.GetDetailed(ctx, in.SessionID, in.Question, &cached) {
		s.metrics.IncAnswer(metrics.PathCache)
		return &cached, nil
	}

	docs, err := s.corpus(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	answers := make([]DetailedAnswer, 0, len(docs))
	for _, d := range docs {
		ans := s.answerer.Answer(ctx, in.Question, d.Text)
		answers = append(answers, DetailedAnswer{
			DocID:      d.ID,
			Answer:     ans.Text,
			Confidence: ans.Confidence,
			Entities:   s.entities(ctx, in, ans.Text),
		})
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Confidence > answers[j].Confidence })

	best := DetailedAnswer{DocID: noDocumentID, Answer: model.NoAnswerText}
	if len(answers) > 0 {
		best = answers[0]
	}
	res := &DetailedResult{Question: in.Question, Answers: answers, BestAnswer: best}
	if len(docs) == 0 {
		s.metrics.IncAnswer(metrics.PathEmpty)
		return res, nil
	}
	s.metrics.IncAnswer(metrics.PathDocument)
	s.cache.CacheDetailed(ctx, in.SessionID, in.Question, res)
	return res, nil
}

// IndexStats reports the session's index, rehydrating it if needed.
func (s *QAService) IndexStats(ctx context.Context, sessionID string) (*rag.Stats, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if stats, ok := s.index.Stats(sessionID); ok {
		return &stats, nil
	}
	docs, err := s.corpus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		s.ensureIndex(ctx, sessionID, docs)
	}
	stats, ok := s.index.Stats(sessionID)
	if !ok {
		return nil, ErrIndexNotFound
	}
	return &stats, nil
}

const maxSearchTopK = 50

type SearchResult struct {
	Query   string                  `json:"query"`
	Results []model.RetrievalResult `json:"results"`
}

// Search returns the chunks nearest to query. topK of zero uses the
// configured default.
func (s *QAService) Search(ctx context.Context, sessionID, query string, topK int) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if topK < 0 || topK > maxSearchTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidInput, maxSearchTopK)
	}
	if topK == 0 {
		topK = s.cfg.TopK
	}
	if _, err := s.IndexStats(ctx, sessionID); err != nil {
		return nil, err
	}
	results := s.index.Retrieve(ctx, sessionID, query, topK)
	if results == nil {
		results = []model.RetrievalResult{}
	}
	return &SearchResult{Query: query, Results: results}, nil
}

func (s *QAService) validate(in AskInput) error {
	if strings.TrimSpace(in.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(in.Question); n > s.cfg.MaxQuestionLength {
		return fmt.Errorf("%w: %d characters, limit %d", ErrQuestionTooLong, n, s.cfg.MaxQuestionLength)
	}
	if in.MaxContextLength < 0 {
		return fmt.Errorf("%w: max_context_length must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *QAService) requireSession(ctx context.Context, id string) error {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	return nil
}

func (s *QAService) corpus(ctx context.Context, sessionID string) ([]model.DocumentText, error) {
	docs, err := s.store.ListDocuments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return corpusOf(docs), nil
}

// ensureIndex rehydrates a session index lost on restart, from the cached
// snapshot when possible and by re-embedding otherwise.
func (s *QAService) ensureIndex(ctx context.Context, sessionID string, docs []model.DocumentText) {
	if s.index.Has(sessionID) {
		return
	}
	if s.index.Restore(ctx, sessionID, docs) {
		return
	}
	s.index.Build(ctx, sessionID, docs)
}

func (s *QAService) contextLength(in AskInput) int {
	if in.MaxContextLength > 0 {
		return in.MaxContextLength
	}
	return s.cfg.MaxContextLength
}

func (s *QAService) result(ctx context.Context, in AskInput, ans model.Answer, source string) *AskResult {
	if source == "" {
		source = unknownSource
	}
	return &AskResult{
		Question:   in.Question,
		Answer:     ans.Text,
		Confidence: ans.Confidence,
		SourceDoc:  source,
		Entities:   s.entities(ctx, in, ans.Text),
	}
}

// entities returns nil when highlighting is off or recognition fails.
func (s *QAService) entities(ctx context.Context, in AskInput, text string) []model.Entity {
	if !in.HighlightEntities || s.recognizer == nil || text == "" {
		return nil
	}
	res, err := s.recognizer.HighlightEntities(ctx, text)
	if err != nil {
		s.logger.Warn("answer entity extraction failed", "session_id", in.SessionID, "error", err)
		return nil
	}
	return res.Entities
}

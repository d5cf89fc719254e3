package qa

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"docqa/internal/model"
	"docqa/internal/rag"
)

const (
	DefaultWindowSize    = 4000
	DefaultWindowOverlap = 200
)

// Via names the path that produced a corpus answer.
type Via string

const (
	ViaRAG      Via = "rag"
	ViaFallback Via = "fallback"
)

// Augmenter assembles a bounded retrieval context for a corpus. An empty
// string means retrieval is unavailable for that corpus.
type Augmenter interface {
	AugmentContext(ctx context.Context, corpusID, question string, maxLen int) string
}

type Options struct {
	WindowSize    int
	WindowOverlap int
}

func DefaultOptions() Options {
	return Options{WindowSize: DefaultWindowSize, WindowOverlap: DefaultWindowOverlap}
}

type Answerer struct {
	extractor Extractor
	augmenter Augmenter
	opts      Options
	logger    *slog.Logger
}

// NewAnswerer builds an Answerer. augmenter may be nil, in which case every
// corpus question is answered by scanning each document.
func NewAnswerer(extractor Extractor, augmenter Augmenter, opts Options, logger *slog.Logger) (*Answerer, error) {
	if err := rag.ValidateChunking(opts.WindowSize, opts.WindowOverlap); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		extractor: extractor,
		augmenter: augmenter,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Answer extracts the best answer to question from text. Text longer than
// the window is split into overlapping windows; each window is answered on
// its own and the highest scoring answer wins, with offsets translated back
// to positions in text. A window whose extraction fails is skipped.
func (a *Answerer) Answer(ctx context.Context, question, text string) model.Answer {
	if strings.TrimSpace(text) == "" {
		return model.Answer{Text: model.NoContextText}
	}

	windows, err := rag.Windows(utf8.RuneCountInString(text), a.opts.WindowSize, a.opts.WindowOverlap)
	if err != nil {
		a.logger.Error("split answer windows failed", slog.Any("error", err))
		return model.NoAnswer()
	}
	runes := []rune(text)

	var (
		best  model.Answer
		found bool
	)
	for i, w := range windows {
		spans, err := a.extractor.Extract(ctx, question, string(runes[w[0]:w[1]]), 1)
		if err != nil {
			a.logger.Warn("extract window failed, skipping",
				slog.Int("window", i),
				slog.Int("start", w[0]),
				slog.Any("error", err),
			)
			continue
		}
		if len(spans) == 0 {
			continue
		}
		s := spans[0]
		if !found || s.Score > best.Confidence {
			best = model.Answer{
				Text:       s.Answer,
				Confidence: s.Score,
				Start:      s.Start + w[0],
				End:        s.End + w[0],
			}
			found = true
		}
	}
	if !found {
		return model.NoAnswer()
	}
	return best
}

// AnswerFromDocuments answers question against a whole corpus. When an
// augmenter is configured it first extracts once from the retrieved
// context and returns that answer if it is non-empty. Otherwise every
// document is answered with Answer and the highest confidence wins; equal
// confidence keeps the earlier document.
func (a *Answerer) AnswerFromDocuments(ctx context.Context, question string, docs []model.DocumentText, corpusID string, maxContextLen int) (model.Answer, Via) {
	if a.augmenter != nil && corpusID != "" {
		if ans, ok := a.answerFromRetrieval(ctx, question, corpusID, maxContextLen); ok {
			return ans, ViaRAG
		}
	}

	best := model.NoAnswer()
	for _, d := range docs {
		ans := a.Answer(ctx, question, d.Text)
		if ans.Confidence > best.Confidence {
			best = ans
			best.Source = d.ID
		}
	}
	return best, ViaFallback
}

func (a *Answerer) answerFromRetrieval(ctx context.Context, question, corpusID string, maxContextLen int) (model.Answer, bool) {
	if maxContextLen <= 0 {
		maxContextLen = rag.DefaultMaxContextLength
	}
	augmented := a.augmenter.AugmentContext(ctx, corpusID, question, maxContextLen)
	if strings.TrimSpace(augmented) == "" {
		return model.Answer{}, false
	}

	spans, err := a.extractor.Extract(ctx, question, augmented, 1)
	if err != nil {
		a.logger.Warn("extract from retrieved context failed, falling back to documents",
			slog.String("session_id", corpusID),
			slog.Any("error", err),
		)
		return model.Answer{}, false
	}
	if len(spans) == 0 || strings.TrimSpace(spans[0].Answer) == "" {
		a.logger.Debug("retrieved context gave no answer, falling back to documents",
			slog.String("session_id", corpusID),
		)
		return model.Answer{}, false
	}

	s := spans[0]
	return model.Answer{
		Text:       s.Answer,
		Confidence: s.Score,
		Start:      s.Start,
		End:        s.End,
		Source:     model.SourceRAG,
	}, true
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"docqa/internal/qa"
)

// QAClient calls an extractive question-answering service:
//
//	POST {base}/question-answering {"question", "context", "top_k"}
//
// The service may answer with a single object or a list of objects; both
// are normalised to []qa.Span here.
type QAClient struct {
	client *Client
	model  string
}

func NewQAClient(client *Client, model string) *QAClient {
	return &QAClient{client: client, model: model}
}

type qaPrediction struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

func (c *QAClient) Extract(ctx context.Context, question, text string, topK int) ([]qa.Span, error) {
	if topK <= 0 {
		topK = 1
	}
	raw, err := c.client.postJSON(ctx, "/question-answering", "qa", map[string]any{
		"model":    c.model,
		"question": question,
		"context":  text,
		"top_k":    topK,
	})
	if err != nil {
		return nil, err
	}
	return decodePredictions(raw)
}

func decodePredictions(raw []byte) ([]qa.Span, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var preds []qaPrediction
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &preds); err != nil {
			return nil, fmt.Errorf("parse qa json list failed: %w", err)
		}
	case '{':
		var one qaPrediction
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("parse qa json object failed: %w", err)
		}
		preds = []qaPrediction{one}
	default:
		return nil, fmt.Errorf("unexpected qa response: %.64s", trimmed)
	}

	spans := make([]qa.Span, 0, len(preds))
	for _, p := range preds {
		score := min(max(p.Score, 0), 1)
		spans = append(spans, qa.Span{Answer: p.Answer, Score: score, Start: p.Start, End: p.End})
	}
	return spans, nil
}

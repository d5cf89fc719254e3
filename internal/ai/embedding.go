package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const defaultEmbeddingBatch = 64

var ErrEmbeddingMismatch = errors.New("embedding response does not match request")

// EmbeddingClient calls an OpenAI-compatible /embeddings endpoint. Inputs
// larger than the provider batch limit are sent in sub-batches inside one
// Embed call; rows are returned in input order.
type EmbeddingClient struct {
	client    *Client
	model     string
	batchSize int
}

func NewEmbeddingClient(client *Client, model string, batchSize int) *EmbeddingClient {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}
	return &EmbeddingClient{client: client, model: model, batchSize: batchSize}
}

func (e *EmbeddingClient) Model() string {
	return e.model
}

func (e *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	// Blank inputs are rejected by most providers; a single space keeps rows
	// aligned with the request.
	inputs := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		inputs[i] = t
	}

	raw, err := e.client.postJSON(ctx, "/embeddings", "embedding batch", map[string]any{
		"model": e.model,
		"input": inputs,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding batch json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d rows for %d inputs", ErrEmbeddingMismatch, len(parsed.Data), len(texts))
	}

	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if parsed.Data[i].Index != i || len(parsed.Data[i].Embedding) == 0 {
			return nil, fmt.Errorf("%w: bad row %d", ErrEmbeddingMismatch, i)
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

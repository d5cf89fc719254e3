package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"docqa/internal/model"
	"docqa/internal/ner"
)

// NERClient calls an entity recognition service at POST {base}/entities.
type NERClient struct {
	client *Client
	model  string
}

func NewNERClient(client *Client, model string) *NERClient {
	return &NERClient{client: client, model: model}
}

func (c *NERClient) HighlightEntities(ctx context.Context, text string) (ner.Result, error) {
	raw, err := c.client.postJSON(ctx, "/entities", "ner", map[string]any{
		"model": c.model,
		"text":  text,
	})
	if err != nil {
		return ner.Result{}, err
	}

	var parsed struct {
		Entities []model.Entity `json:"entities"`
		Error    string         `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ner.Result{}, fmt.Errorf("parse ner json failed: %w", err)
	}
	if parsed.Error != "" {
		return ner.Result{}, fmt.Errorf("ner service: %s", parsed.Error)
	}
	for i := range parsed.Entities {
		if parsed.Entities[i].LabelDescription == "" {
			parsed.Entities[i].LabelDescription = ner.Describe(parsed.Entities[i].Label)
		}
	}
	return ner.Result{Text: text, Entities: parsed.Entities}, nil
}

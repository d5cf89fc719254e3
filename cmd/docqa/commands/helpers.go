package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docqa/internal/model"
	"docqa/internal/pkg/textextract"
)

// loadDocuments extracts the text of every path. The document ID is the
// file's base name.
func loadDocuments(ctx context.Context, paths []string, timeout time.Duration) ([]model.DocumentText, error) {
	docs := make([]model.DocumentText, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s failed: %w", p, err)
		}
		text, err := textextract.Extract(ctx, p, data, timeout)
		if err != nil {
			return nil, fmt.Errorf("extract %s failed: %w", p, err)
		}
		docs = append(docs, model.DocumentText{ID: filepath.Base(p), Text: text})
	}
	return docs, nil
}

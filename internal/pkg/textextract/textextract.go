// Package textextract turns uploaded files into plain text.
package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrOCRUnavailable  = errors.New("ocr service unavailable")
	ErrMalformed       = errors.New("malformed document")
	ErrTimeout         = errors.New("text extraction timed out")
)

var (
	textExtensions  = map[string]bool{".pdf": true, ".txt": true, ".md": true}
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tiff": true}
)

// Supported reports whether uploads with this filename are accepted. Image
// types are accepted even though they fail extraction without OCR.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return textExtensions[ext] || imageExtensions[ext]
}

// Extensions lists every accepted extension.
func Extensions() []string {
	return []string{".pdf", ".txt", ".md", ".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff"}
}

// Extract returns the text of data, chosen by filename's extension. It
// gives up after timeout (DefaultTimeout when zero) or when ctx ends; a
// parser that is still running is abandoned.
func Extract(ctx context.Context, filename string, data []byte, timeout time.Duration) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExtensions[ext]:
		return "", ErrOCRUnavailable
	case !textExtensions[ext]:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if len(data) == 0 {
		return "", nil
	}
	if ext != ".pdf" {
		return decodeText(data), nil
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := extractPDF(data)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

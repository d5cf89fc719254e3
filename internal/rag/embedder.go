package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder turns texts into fixed-dimension vectors. Implementations must be
// deterministic for a fixed Model and must embed a whole batch in one call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

const DefaultHashDimension = 384

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.,][\p{L}\p{N}]+)*`)

// HashEmbedder is a local embedder that projects word unigrams and bigrams
// into a fixed number of buckets with FNV hashing. Vectors are L2
// normalised, so squared distances fall in [0, 4].
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("hashing-%d", e.dim)
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float64, e.dim)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dim)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Tokenize lowercases text and returns its word tokens with stopwords
// removed. Numbers keep inner separators so "50,000" stays one token.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "can", "did", "do", "does",
		"for", "from", "has", "have", "how", "i", "in", "is", "it", "its", "of",
		"on", "or", "that", "the", "their", "there", "these", "this", "to", "was",
		"were", "what", "when", "where", "which", "who", "whom", "why", "will",
		"with", "you", "your", "we", "our", "they", "them", "he", "she", "his",
		"her", "been", "being", "into", "about", "any", "all", "so", "than",
		"then", "if", "but", "not", "no", "should", "would", "could", "may",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether the lowercased word is ignored by Tokenize.
func IsStopword(word string) bool {
	_, ok := stopwords[strings.ToLower(word)]
	return ok
}

// Package cache memoises answers and embedding snapshots per session.
// Every operation is best effort: backend failures are logged and reported
// as misses so the request path never depends on the cache.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/model"
)

const (
	DefaultQATTL       = time.Hour
	DefaultSnapshotTTL = 24 * time.Hour

	kindQA       = "qa_result"
	kindDetailed = "qa_detailed"
	kindSnapshot = "embeddings"
)

type Manager struct {
	backend     Backend
	qaTTL       time.Duration
	snapshotTTL time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewManager(backend Backend, qaTTL, snapshotTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if qaTTL <= 0 {
		qaTTL = DefaultQATTL
	}
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:     backend,
		qaTTL:       qaTTL,
		snapshotTTL: snapshotTTL,
		metrics:     m,
		logger:      logger,
	}
}

// Name reports the backend type, or "disabled" when there is none.
func (m *Manager) Name() string {
	if m == nil || m.backend == nil {
		return "disabled"
	}
	return m.backend.Name()
}

func (m *Manager) GetQAResult(ctx context.Context, sessionID, question string, v any) bool {
	return m.get(ctx, kindQA, questionKey(kindQA, sessionID, question), v)
}

func (m *Manager) CacheQAResult(ctx context.Context, sessionID, question string, v any) {
	m.set(ctx, questionKey(kindQA, sessionID, question), v, m.qaTTLOrDefault())
}

func (m *Manager) GetDetailed(ctx context.Context, sessionID, question string, v any) bool {
	return m.get(ctx, kindDetailed, questionKey(kindDetailed, sessionID, question), v)
}

func (m *Manager) CacheDetailed(ctx context.Context, sessionID, question string, v any) {
	m.set(ctx, questionKey(kindDetailed, sessionID, question), v, m.qaTTLOrDefault())
}

func (m *Manager) SaveSnapshot(ctx context.Context, sessionID string, snap model.IndexSnapshot) {
	if m == nil {
		return
	}
	m.set(ctx, snapshotKey(sessionID), snap, m.snapshotTTL)
}

func (m *Manager) LoadSnapshot(ctx context.Context, sessionID string) (model.IndexSnapshot, bool) {
	var snap model.IndexSnapshot
	if !m.get(ctx, kindSnapshot, snapshotKey(sessionID), &snap) {
		return model.IndexSnapshot{}, false
	}
	return snap, true
}

// InvalidateAnswers drops cached answers for a session while keeping its
// embedding snapshot.
func (m *Manager) InvalidateAnswers(ctx context.Context, sessionID string) int {
	if m == nil || m.backend == nil {
		return 0
	}
	total := 0
	for _, kind := range []string{kindQA, kindDetailed} {
		n, err := m.backend.DeleteMatching(ctx, kind+":"+sessionID+":")
		if err != nil {
			m.logger.Warn("invalidate cached answers failed", "session_id", sessionID, "error", err)
		}
		total += n
	}
	return total
}

// ClearSession drops every key that mentions the session.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) int {
	if m == nil || m.backend == nil || sessionID == "" {
		return 0
	}
	n, err := m.backend.DeleteMatching(ctx, sessionID)
	if err != nil {
		m.logger.Warn("clear session cache failed", "session_id", sessionID, "error", err)
	}
	return n
}

func (m *Manager) Stats(ctx context.Context) Stats {
	if m == nil || m.backend == nil {
		return Stats{Type: "disabled"}
	}
	stats, err := m.backend.Stats(ctx)
	if err != nil {
		m.logger.Warn("cache stats failed", "backend", m.backend.Name(), "error", err)
		stats.Connected = false
		if stats.Type == "" {
			stats.Type = m.backend.Name()
		}
		if stats.Error == "" {
			stats.Error = err.Error()
		}
	}
	return stats
}

func (m *Manager) get(ctx context.Context, kind, key string, v any) bool {
	if m == nil || m.backend == nil {
		return false
	}
	raw, ok, err := m.backend.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache get failed", "key", key, "error", err)
		ok = false
	}
	if ok {
		if err := json.Unmarshal(raw, v); err != nil {
			m.logger.Warn("unmarshal cached value failed", "key", key, "error", err)
			ok = false
		}
	}
	m.metrics.IncCacheLookup(kind, ok)
	return ok
}

func (m *Manager) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if m == nil || m.backend == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("marshal cache value failed", "key", key, "error", err)
		return
	}
	if err := m.backend.Set(ctx, key, payload, ttl); err != nil {
		m.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (m *Manager) qaTTLOrDefault() time.Duration {
	if m == nil {
		return DefaultQATTL
	}
	return m.qaTTL
}

func questionKey(kind, sessionID, question string) string {
	sum := md5.Sum([]byte(question))
	return fmt.Sprintf("%s:%s:%s", kind, sessionID, hex.EncodeToString(sum[:]))
}

func snapshotKey(sessionID string) string {
	return kindSnapshot + ":" + sessionID
}

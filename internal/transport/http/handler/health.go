package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/cache"
	"docqa/internal/ner"
)

// Dependency is an external component probed by the health check.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// ServiceInfo describes the running service and the models it answers with.
type ServiceInfo struct {
	Name      string
	Env       string
	Version   string
	StartedAt time.Time

	QAModel        string
	NERModel       string
	EmbeddingModel string
	RAGEnabled     bool
}

type CacheStatter interface {
	Stats(ctx context.Context) cache.Stats
}

type HealthHandler struct {
	info  ServiceInfo
	deps  []Dependency
	cache CacheStatter
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(info ServiceInfo, cache CacheStatter, deps ...Dependency) *HealthHandler {
	return &HealthHandler{info: info, deps: deps, cache: cache}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	statuses := make(gin.H, len(h.deps))
	for _, dep := range h.deps {
		st := dependencyStatus{OK: true}
		if err := dep.Ping(ctx); err != nil {
			st = dependencyStatus{OK: false, Message: err.Error()}
			allOK = false
		}
		statuses[dep.Name] = st
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.info.Name,
		"env":          h.info.Env,
		"version":      h.info.Version,
		"uptime_sec":   int(time.Since(h.info.StartedAt).Seconds()),
		"dependencies": statuses,
	})
}

type cacheComponent struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

type modelsComponent struct {
	QA        string `json:"qa"`
	NER       string `json:"ner"`
	Embedding string `json:"embedding"`
}

type detailedHealth struct {
	Status     string `json:"status"`
	Components struct {
		Cache  cacheComponent  `json:"cache"`
		Models modelsComponent `json:"models"`
	} `json:"components"`
	Version string `json:"version"`
}

// Detailed reports cache connectivity and the configured models. A
// disconnected cache degrades the service but does not fail it.
func (h *HealthHandler) Detailed(c *gin.Context) {
	stats := h.cache.Stats(c.Request.Context())

	var out detailedHealth
	out.Status = "healthy"
	if !stats.Connected {
		out.Status = "degraded"
	}
	out.Components.Cache = cacheComponent{Type: stats.Type, Connected: stats.Connected}
	out.Components.Models = modelsComponent{
		QA:        loaded(h.info.QAModel),
		NER:       loaded(h.info.NERModel),
		Embedding: loaded(h.info.EmbeddingModel),
	}
	out.Version = h.info.Version
	c.JSON(http.StatusOK, out)
}

func (h *HealthHandler) ModelsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"qa_model": gin.H{
			"name":   h.info.QAModel,
			"loaded": h.info.QAModel != "",
		},
		"ner_model": gin.H{
			"name":   h.info.NERModel,
			"loaded": h.info.NERModel != "",
			"labels": ner.Labels(),
		},
		"embedding_model": gin.H{
			"name":    h.info.EmbeddingModel,
			"loaded":  h.info.EmbeddingModel != "",
			"enabled": h.info.RAGEnabled,
		},
	})
}

func loaded(name string) string {
	if name == "" {
		return "not loaded"
	}
	return "loaded"
}

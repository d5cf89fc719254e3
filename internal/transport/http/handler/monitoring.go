package handler

import (
	"github.com/gin-gonic/gin"

	"docqa/internal/transport/http/response"
)

type MonitoringHandler struct {
	cache CacheStatter
}

func NewMonitoringHandler(cache CacheStatter) *MonitoringHandler {
	return &MonitoringHandler{cache: cache}
}

func (h *MonitoringHandler) CacheStats(c *gin.Context) {
	response.OK(c, h.cache.Stats(c.Request.Context()))
}

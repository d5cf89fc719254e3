package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

type QAHandler struct {
	qa *app.QAService
}

type AskRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Question  string `json:"question" binding:"required"`
	DocID     string `json:"doc_id"`
	// HighlightEntities defaults to true when omitted.
	HighlightEntities *bool `json:"highlight_entities"`
	MaxContextLength  int   `json:"max_context_length" binding:"gte=0"`
}

func (r AskRequest) input() app.AskInput {
	highlight := true
	if r.HighlightEntities != nil {
		highlight = *r.HighlightEntities
	}
	return app.AskInput{
		SessionID:         r.SessionID,
		Question:          r.Question,
		DocID:             r.DocID,
		HighlightEntities: highlight,
		MaxContextLength:  r.MaxContextLength,
	}
}

func NewQAHandler(qa *app.QAService) *QAHandler {
	return &QAHandler{qa: qa}
}

func (h *QAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.qa.Ask(c.Request.Context(), req.input())
	if err != nil {
		writeServiceError(c, err, "answer question failed")
		return
	}
	response.OK(c, result)
}

func (h *QAHandler) AskDetailed(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.qa.AskDetailed(c.Request.Context(), req.input())
	if err != nil {
		writeServiceError(c, err, "answer question failed")
		return
	}
	response.OK(c, result)
}

func (h *QAHandler) IndexStats(c *gin.Context) {
	stats, err := h.qa.IndexStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "index stats failed")
		return
	}
	response.OK(c, stats)
}

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

func (h *QAHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.qa.Search(c.Request.Context(), c.Param("id"), req.Query, req.TopK)
	if err != nil {
		writeServiceError(c, err, "search failed")
		return
	}
	response.OK(c, result)
}

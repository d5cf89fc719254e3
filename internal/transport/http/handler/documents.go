package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/transport/http/response"
)

const uploadField = "files"

type DocumentHandler struct {
	docs         *app.DocumentService
	maxFileBytes int64
}

func NewDocumentHandler(docs *app.DocumentService, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxFileBytes: maxFileBytes}
}

func (h *DocumentHandler) CreateSession(c *gin.Context) {
	session, err := h.docs.CreateSession(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "create session failed")
		return
	}
	response.OK(c, gin.H{
		"session_id": session.ID,
		"created_at": session.CreatedAt,
	})
}

// Upload accepts one or more multipart "files" parts. Each part is read up
// to one byte past the size limit so oversized files are still reported per
// file instead of failing the request.
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "request body too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	headers := form.File[uploadField]
	if len(headers) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files provided")
		return
	}

	files := make([]app.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, h.maxFileBytes+1))
		f.Close()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
			return
		}
		files = append(files, app.UploadFile{Filename: fh.Filename, Data: data})
	}

	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.Query("session_id"))
	}

	result, err := h.docs.Upload(c.Request.Context(), app.UploadInput{
		SessionID: sessionID,
		Files:     files,
	})
	if err != nil {
		writeServiceError(c, err, "upload failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) GetSession(c *gin.Context) {
	info, err := h.docs.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "get session failed")
		return
	}
	response.OK(c, info)
}

func (h *DocumentHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.docs.DeleteSession(c.Request.Context(), id); err != nil {
		writeServiceError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"session_id": id, "deleted": true})
}

func (h *DocumentHandler) CountSessions(c *gin.Context) {
	count, err := h.docs.CountSessions(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "count sessions failed")
		return
	}
	response.OK(c, count)
}

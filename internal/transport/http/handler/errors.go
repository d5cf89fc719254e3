package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/logging"
	"docqa/internal/transport/http/response"
)

// writeServiceError maps app errors onto the response envelope. Anything
// unrecognised is logged and reported as a 500 with fallback as message.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrQuestionTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeQuestionTooLong, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrIndexNotFound):
		response.Error(c, http.StatusNotFound, response.CodeIndexNotFound, err.Error())
	default:
		logging.FromContext(c.Request.Context()).Error(fallback, "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

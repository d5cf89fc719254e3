package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/pkg/jwtutil"
	"docqa/internal/transport/http/response"
)

const demoUser = "demo_user"

type TokenHandler struct {
	secret     string
	expiration time.Duration
}

func NewTokenHandler(secret string, expiration time.Duration) *TokenHandler {
	return &TokenHandler{secret: secret, expiration: expiration}
}

// Issue returns a bearer token for the demo user. There is no credential
// check; the token only gates the API against anonymous callers.
func (h *TokenHandler) Issue(c *gin.Context) {
	token, err := jwtutil.GenerateToken(h.secret, h.expiration, demoUser)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "issue token failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(h.expiration.Seconds()),
	})
}

package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/socialhub/backend/internal/service"
)

// TokenExtractor reads the session token from the transports enabled by
// AUTH_TOKEN_TRANSPORT. With both enabled the Authorization header wins.
type TokenExtractor struct {
	transport  string
	cookieName string
}

func NewTokenExtractor(transport, cookieName string) TokenExtractor {
	return TokenExtractor{transport: transport, cookieName: cookieName}
}

func (e TokenExtractor) Extract(c *gin.Context) string {
	if e.UsesBearer() {
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			return token
		}
	}
	if e.UsesCookie() {
		if token, err := c.Cookie(e.cookieName); err == nil {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

func (e TokenExtractor) UsesBearer() bool {
	return e.transport == service.TransportBearer || e.transport == service.TransportBoth
}

func (e TokenExtractor) UsesCookie() bool {
	return e.transport == service.TransportCookie || e.transport == service.TransportBoth
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

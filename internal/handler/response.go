package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/model"
	"github.com/socialhub/backend/internal/service"
)

// Every 401 carries the same message so callers cannot tell a wrong password
// from an unknown user or a revoked token.
const msgNotAuthorized = "not authorized"

func writeMessage(c *gin.Context, status int, message string) {
	c.JSON(status, model.Envelope{Success: status < http.StatusBadRequest, Message: message})
}

func abortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, model.Envelope{Success: false, Message: message})
}

// writeAuthError maps service errors onto the response envelope. Unexpected
// errors are logged in full and hidden from the client.
func writeAuthError(c *gin.Context, logger *zap.Logger, err error) {
	status, message := classifyError(err)
	switch {
	case status == http.StatusInternalServerError:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	case status == http.StatusServiceUnavailable:
		logger.Warn("storage unavailable", zap.String("path", c.FullPath()), zap.Error(err))
	}
	abortWithMessage(c, status, message)
}

func classifyError(err error) (int, string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, service.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, msgNotAuthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, "username already taken"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "already exists"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// bindingMessage turns a gin binding failure into a client message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	field := fe.Field()
	if field != "" {
		field = strings.ToLower(field[:1]) + field[1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "email":
		return fmt.Sprintf("%s: must be a valid email address", field)
	default:
		return fmt.Sprintf("%s: is invalid", field)
	}
}

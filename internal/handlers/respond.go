package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatdeck/api/internal/ai"
	"chatdeck/api/internal/repository"
	"chatdeck/api/internal/service"
)

// Every response is the same envelope: {status, message, data?}.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

func respondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, envelope{Status: "success", Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{Status: "error", Message: message})
}

// respondServiceError maps service and repository sentinels onto HTTP codes.
// Anything unrecognized is an upstream failure and stays opaque to the client.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrAttachmentNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, service.ErrEmptyFile):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrCodeInvalid):
		respondError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserSuspended):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ai.ErrRunTimeout):
		respondError(c, http.StatusGatewayTimeout, "completion timed out")
	default:
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}

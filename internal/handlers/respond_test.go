package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/api/internal/ai"
	"chatdeck/api/internal/repository"
	"chatdeck/api/internal/service"
)

func TestRespondServiceErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err        error
		wantStatus int
	}{
		{repository.ErrSessionNotFound, http.StatusNotFound},
		{repository.ErrAttachmentNotFound, http.StatusNotFound},
		{repository.ErrUserNotFound, http.StatusNotFound},
		{service.ErrEmptyPrompt, http.StatusBadRequest},
		{service.ErrEmptyFile, http.StatusBadRequest},
		{service.ErrEmailTaken, http.StatusConflict},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrCodeInvalid, http.StatusUnauthorized},
		{service.ErrUserSuspended, http.StatusForbidden},
		{ai.ErrRunTimeout, http.StatusGatewayTimeout},
		{errors.New("pg: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			respondServiceError(c, fmt.Errorf("handler: %w", tt.err))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
		})
	}
}

func TestRespondServiceErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondServiceError(c, errors.New("dial tcp 10.0.0.3:5432: connect: connection refused"))

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Message)
}

package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondOK(c, "profile", userData{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
		AvatarURL:   user.AvatarURL,
	})
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.account.UpdateDisplayName(c.Request.Context(), user.ID, req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "profile updated", userData{
		ID:          updated.ID,
		Email:       updated.Email,
		DisplayName: updated.DisplayName,
		Role:        string(updated.Role),
		AvatarURL:   updated.AvatarURL,
	})
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, http.StatusBadRequest, "read file failed")
		return
	}

	updated, err := h.account.UpdateAvatar(
		c.Request.Context(),
		user.ID,
		header.Filename,
		data,
		header.Header.Get("Content-Type"),
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "avatar updated", gin.H{"avatarUrl": updated.AvatarURL})
}

func (h HandlerSet) DeleteAccount(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.account.DeleteAccount(c.Request.Context(), user.ID); err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "account deleted", nil)
}

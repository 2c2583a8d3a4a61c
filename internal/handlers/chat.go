package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatdeck/api/internal/models"
)

type promptRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	SessionID string `json:"sessionId"`
}

// NewPrompt handles POST /chat: starts a session when no sessionId is given,
// continues it otherwise.
func (h HandlerSet) NewPrompt(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chat.Prompt(c.Request.Context(), user.ID, req.SessionID, req.Prompt)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "completed", gin.H{
		"sessionId": result.SessionID,
		"response":  result.Response,
	})
}

type continueRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// ContinuePrompt handles PUT /chat: the sessionId is mandatory here.
func (h HandlerSet) ContinuePrompt(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req continueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chat.Prompt(c.Request.Context(), user.ID, req.SessionID, req.Prompt)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "completed", gin.H{
		"sessionId": result.SessionID,
		"response":  result.Response,
	})
}

type exchangeData struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

func (h HandlerSet) SavedSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		respondError(c, http.StatusBadRequest, "sessionId required")
		return
	}

	exchanges, err := h.chat.Exchanges(c.Request.Context(), user.ID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "session", gin.H{
		"sessionId": sessionID,
		"exchanges": exchangeList(exchanges),
	})
}

func (h HandlerSet) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	history, err := h.chat.History(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	sessions := make([]gin.H, 0, len(history))
	for _, item := range history {
		sessions = append(sessions, gin.H{
			"sessionId": item.SessionID,
			"exchanges": exchangeList(item.Exchanges),
		})
	}

	respondOK(c, "history", gin.H{"sessions": sessions})
}

func (h HandlerSet) ClearHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.chat.ClearAll(c.Request.Context(), user.ID); err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "history cleared", nil)
}

func (h HandlerSet) UploadAttachment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := c.PostForm("sessionId")
	if sessionID == "" {
		respondError(c, http.StatusBadRequest, "sessionId required")
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

	session, err := h.attachments.Attach(
		c.Request.Context(),
		user.ID,
		sessionID,
		header.Filename,
		data,
		header.Header.Get("Content-Type"),
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "file attached", sessionFileData(session))
}

type deleteFileRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	FileName  string `json:"fileName" binding:"required"`
}

func (h HandlerSet) DeleteAttachment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req deleteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.attachments.Detach(c.Request.Context(), user.ID, req.SessionID, req.FileName)
	if err != nil {
		h.fail(c, err)
		return
	}

	respondOK(c, "file detached", sessionFileData(session))
}

func exchangeList(exchanges []models.Exchange) []exchangeData {
	out := make([]exchangeData, 0, len(exchanges))
	for _, ex := range exchanges {
		out = append(out, exchangeData{Prompt: ex.Prompt, Response: ex.Response})
	}
	return out
}

func sessionFileData(session models.ChatSession) gin.H {
	files := make([]string, 0, len(session.Attachments))
	for _, att := range session.Attachments {
		files = append(files, att.FileName)
	}
	return gin.H{
		"sessionId": session.ID,
		"mode":      string(session.Mode),
		"files":     files,
	}
}

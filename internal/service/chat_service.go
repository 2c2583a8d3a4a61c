package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chatdeck/api/internal/models"
	"chatdeck/api/internal/repository"
)

var ErrEmptyPrompt = errors.New("prompt must not be empty")

type completionGateway interface {
	CompleteFreeform(ctx context.Context, prior []models.Turn, prompt string) (string, error)
	CompleteFreeformStream(ctx context.Context, prior []models.Turn, prompt string) (string, error)
	CompleteWithAssistant(ctx context.Context, assistantRef string, prompt string) (string, error)
}

type sessionStore interface {
	CreateSession(ctx context.Context, userID, prompt, response string) (string, error)
	AppendExchange(ctx context.Context, p repository.AppendParams) error
	GetSession(ctx context.Context, userID, sessionID string) (models.ChatSession, error)
	ListExchanges(ctx context.Context, userID, sessionID string) ([]models.Exchange, error)
	ListSessions(ctx context.Context, userID string) ([]models.SessionHistory, error)
	DeleteAllSessions(ctx context.Context, userID string) error
}

// ChatService routes each prompt through the right completion path and
// persists the exchange only once the completion has succeeded, so no
// partial exchange is ever written.
type ChatService struct {
	store   sessionStore
	gateway completionGateway
	log     zerolog.Logger
}

func NewChatService(store sessionStore, gateway completionGateway, log zerolog.Logger) *ChatService {
	return &ChatService{
		store:   store,
		gateway: gateway,
		log:     log,
	}
}

type PromptResult struct {
	SessionID string
	Response  string
}

// Prompt answers one user prompt. An empty sessionID starts a new session;
// otherwise the session's completion mode decides between the freeform and
// the assistant path.
func (s *ChatService) Prompt(ctx context.Context, userID, sessionID, prompt string) (PromptResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return PromptResult{}, ErrEmptyPrompt
	}

	if sessionID == "" {
		return s.startSession(ctx, userID, prompt)
	}
	return s.continueSession(ctx, userID, sessionID, prompt)
}

func (s *ChatService) startSession(ctx context.Context, userID, prompt string) (PromptResult, error) {
	response, err := s.gateway.CompleteFreeform(ctx, nil, prompt)
	if err != nil {
		return PromptResult{}, fmt.Errorf("freeform completion: %w", err)
	}

	sessionID, err := s.store.CreateSession(ctx, userID, prompt, response)
	if err != nil {
		return PromptResult{}, fmt.Errorf("create session: %w", err)
	}

	s.log.Debug().Str("user_id", userID).Str("session_id", sessionID).Msg("session started")
	return PromptResult{SessionID: sessionID, Response: response}, nil
}

func (s *ChatService) continueSession(ctx context.Context, userID, sessionID, prompt string) (PromptResult, error) {
	session, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return PromptResult{}, err
	}

	var response string
	switch session.Mode {
	case models.ModeAssistant:
		response, err = s.gateway.CompleteWithAssistant(ctx, session.AssistantRef, prompt)
		if err != nil {
			return PromptResult{}, fmt.Errorf("assistant completion: %w", err)
		}
	default:
		exchanges, err := s.store.ListExchanges(ctx, userID, sessionID)
		if err != nil {
			return PromptResult{}, err
		}
		response, err = s.gateway.CompleteFreeformStream(ctx, models.RawTurns(exchanges), prompt)
		if err != nil {
			return PromptResult{}, fmt.Errorf("freeform completion: %w", err)
		}
	}

	// The completion is not cached: if this append fails the caller has to
	// resubmit and pays for a second completion.
	if err := s.store.AppendExchange(ctx, repository.AppendParams{
		UserID:    userID,
		SessionID: sessionID,
		Prompt:    prompt,
		Response:  response,
	}); err != nil {
		return PromptResult{}, fmt.Errorf("append exchange: %w", err)
	}

	return PromptResult{SessionID: sessionID, Response: response}, nil
}

func (s *ChatService) Exchanges(ctx context.Context, userID, sessionID string) ([]models.Exchange, error) {
	return s.store.ListExchanges(ctx, userID, sessionID)
}

func (s *ChatService) History(ctx context.Context, userID string) ([]models.SessionHistory, error) {
	return s.store.ListSessions(ctx, userID)
}

func (s *ChatService) ClearAll(ctx context.Context, userID string) error {
	return s.store.DeleteAllSessions(ctx, userID)
}

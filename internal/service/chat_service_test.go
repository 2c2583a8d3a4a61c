package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/api/internal/models"
	"chatdeck/api/internal/repository"
)

type fakeSessionStore struct {
	session      models.ChatSession
	sessionErr   error
	exchanges    []models.Exchange
	history      []models.SessionHistory
	createdID    string
	createErr    error
	appendErr    error
	createCalls  int
	appendCalls  int
	lastAppend   repository.AppendParams
	clearedUsers []string
}

func (f *fakeSessionStore) CreateSession(ctx context.Context, userID, prompt, response string) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createdID, nil
}

func (f *fakeSessionStore) AppendExchange(ctx context.Context, p repository.AppendParams) error {
	f.appendCalls++
	f.lastAppend = p
	return f.appendErr
}

func (f *fakeSessionStore) GetSession(ctx context.Context, userID, sessionID string) (models.ChatSession, error) {
	if f.sessionErr != nil {
		return models.ChatSession{}, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeSessionStore) ListExchanges(ctx context.Context, userID, sessionID string) ([]models.Exchange, error) {
	return f.exchanges, nil
}

func (f *fakeSessionStore) ListSessions(ctx context.Context, userID string) ([]models.SessionHistory, error) {
	return f.history, nil
}

func (f *fakeSessionStore) DeleteAllSessions(ctx context.Context, userID string) error {
	f.clearedUsers = append(f.clearedUsers, userID)
	return nil
}

type fakeCompletionGateway struct {
	freeformReply  string
	streamReply    string
	assistantReply string
	freeformErr    error
	streamErr      error
	assistantErr   error

	freeformCalls  int
	streamCalls    int
	assistantCalls int
	lastPrior      []models.Turn
	lastRef        string
}

func (f *fakeCompletionGateway) CompleteFreeform(ctx context.Context, prior []models.Turn, prompt string) (string, error) {
	f.freeformCalls++
	f.lastPrior = prior
	return f.freeformReply, f.freeformErr
}

func (f *fakeCompletionGateway) CompleteFreeformStream(ctx context.Context, prior []models.Turn, prompt string) (string, error) {
	f.streamCalls++
	f.lastPrior = prior
	return f.streamReply, f.streamErr
}

func (f *fakeCompletionGateway) CompleteWithAssistant(ctx context.Context, assistantRef string, prompt string) (string, error) {
	f.assistantCalls++
	f.lastRef = assistantRef
	return f.assistantReply, f.assistantErr
}

func TestPromptEmptySessionStartsNewSession(t *testing.T) {
	store := &fakeSessionStore{createdID: "sess-1"}
	gateway := &fakeCompletionGateway{freeformReply: "hello back"}
	svc := NewChatService(store, gateway, zerolog.Nop())

	result, err := svc.Prompt(context.Background(), "user-1", "", "hello")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, "hello back", result.Response)
	assert.Equal(t, 1, gateway.freeformCalls)
	assert.Nil(t, gateway.lastPrior)
	assert.Equal(t, 1, store.createCalls)
	assert.Zero(t, store.appendCalls)
}

func TestPromptFreeformSessionSendsPriorTurns(t *testing.T) {
	store := &fakeSessionStore{
		session: models.ChatSession{ID: "sess-1", UserID: "user-1", Mode: models.ModeFreeform},
		exchanges: []models.Exchange{
			{Seq: 1, Prompt: "first", Response: "one"},
			{Seq: 2, Prompt: "second", Response: "two"},
		},
	}
	gateway := &fakeCompletionGateway{streamReply: "three"}
	svc := NewChatService(store, gateway, zerolog.Nop())

	result, err := svc.Prompt(context.Background(), "user-1", "sess-1", "third")
	require.NoError(t, err)

	assert.Equal(t, "three", result.Response)
	assert.Equal(t, 1, gateway.streamCalls)
	assert.Zero(t, gateway.assistantCalls)
	require.Len(t, gateway.lastPrior, 4)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "first"}, gateway.lastPrior[0])
	assert.Equal(t, models.Turn{Role: models.RoleAssistant, Content: "two"}, gateway.lastPrior[3])

	assert.Equal(t, 1, store.appendCalls)
	assert.Equal(t, "third", store.lastAppend.Prompt)
	assert.Equal(t, "three", store.lastAppend.Response)
}

func TestPromptAssistantSessionUsesAssistantPath(t *testing.T) {
	store := &fakeSessionStore{
		session: models.ChatSession{
			ID:           "sess-1",
			UserID:       "user-1",
			Mode:         models.ModeAssistant,
			AssistantRef: "asst_42",
		},
	}
	gateway := &fakeCompletionGateway{assistantReply: "from the file"}
	svc := NewChatService(store, gateway, zerolog.Nop())

	result, err := svc.Prompt(context.Background(), "user-1", "sess-1", "summarize")
	require.NoError(t, err)

	assert.Equal(t, "from the file", result.Response)
	assert.Equal(t, 1, gateway.assistantCalls)
	assert.Equal(t, "asst_42", gateway.lastRef)
	assert.Zero(t, gateway.streamCalls)
	assert.Equal(t, 1, store.appendCalls)
}

func TestPromptGatewayFailureDoesNotPersist(t *testing.T) {
	store := &fakeSessionStore{
		session: models.ChatSession{ID: "sess-1", Mode: models.ModeFreeform},
	}
	gateway := &fakeCompletionGateway{streamErr: errors.New("provider down")}
	svc := NewChatService(store, gateway, zerolog.Nop())

	_, err := svc.Prompt(context.Background(), "user-1", "sess-1", "hello")
	require.Error(t, err)
	assert.Zero(t, store.appendCalls)
}

func TestPromptUnknownSession(t *testing.T) {
	store := &fakeSessionStore{sessionErr: repository.ErrSessionNotFound}
	svc := NewChatService(store, &fakeCompletionGateway{}, zerolog.Nop())

	_, err := svc.Prompt(context.Background(), "user-1", "missing", "hello")
	require.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestPromptAppendFailureSurfaces(t *testing.T) {
	store := &fakeSessionStore{
		session:   models.ChatSession{ID: "sess-1", Mode: models.ModeFreeform},
		appendErr: errors.New("connection reset"),
	}
	gateway := &fakeCompletionGateway{streamReply: "fine"}
	svc := NewChatService(store, gateway, zerolog.Nop())

	_, err := svc.Prompt(context.Background(), "user-1", "sess-1", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, store.appendCalls)
}

func TestPromptRejectsBlankPrompt(t *testing.T) {
	svc := NewChatService(&fakeSessionStore{}, &fakeCompletionGateway{}, zerolog.Nop())

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := svc.Prompt(context.Background(), "user-1", "sess-1", prompt)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	}
}

func TestClearAll(t *testing.T) {
	store := &fakeSessionStore{}
	svc := NewChatService(store, &fakeCompletionGateway{}, zerolog.Nop())

	require.NoError(t, svc.ClearAll(context.Background(), "user-1"))
	assert.Equal(t, []string{"user-1"}, store.clearedUsers)
}

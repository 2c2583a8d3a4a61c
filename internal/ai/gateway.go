package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"chatdeck/api/internal/config"
	"chatdeck/api/internal/models"
)

var (
	// ErrRunTimeout is returned when an assistant run does not reach a
	// terminal state within the configured deadline.
	ErrRunTimeout = errors.New("assistant run timed out")
	ErrRunFailed  = errors.New("assistant run failed")
	ErrEmptyReply = errors.New("provider returned no completion")
)

const maxPollInterval = 10 * time.Second

// Gateway wraps the completion provider. The client is injected at startup;
// nothing in here touches package-level state.
type Gateway struct {
	client *openai.Client
	cfg    config.OpenAIConfig
	log    zerolog.Logger
}

func NewGateway(cfg config.OpenAIConfig, log zerolog.Logger) *Gateway {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Gateway{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		log:    log,
	}
}

// CompleteFreeform runs a single synchronous completion over the prior turns
// plus the new prompt.
func (g *Gateway) CompleteFreeform(ctx context.Context, prior []models.Turn, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.cfg.Model,
		Messages: g.buildMessages(prior, prompt),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return normalizeResponse(resp.Choices[0].Message.Content), nil
}

// CompleteFreeformStream uses the incremental-delivery transport and returns
// the fragments assembled in arrival order.
func (g *Gateway) CompleteFreeformStream(ctx context.Context, prior []models.Turn, prompt string) (string, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    g.cfg.Model,
		Messages: g.buildMessages(prior, prompt),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read completion stream: %w", err)
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}

	if sb.Len() == 0 {
		return "", ErrEmptyReply
	}
	return normalizeResponse(sb.String()), nil
}

// CompleteWithAssistant submits the prompt on a fresh provider thread bound to
// the assistant and polls the run until it completes. Polling backs off
// exponentially and gives up at the configured deadline.
func (g *Gateway) CompleteWithAssistant(ctx context.Context, assistantRef string, prompt string) (string, error) {
	thread, err := g.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	if _, err := g.client.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    models.RoleUser,
		Content: prompt,
	}); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	run, err := g.client.CreateRun(ctx, thread.ID, openai.RunRequest{
		AssistantID: assistantRef,
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	if err := g.awaitRun(ctx, thread.ID, run.ID); err != nil {
		return "", err
	}

	return g.latestAssistantReply(ctx, thread.ID)
}

func (g *Gateway) awaitRun(ctx context.Context, threadID, runID string) error {
	interval := g.cfg.RunPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(g.cfg.RunTimeout)

	for {
		run, err := g.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("retrieve run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, openai.RunStatusRequiresAction:
			return fmt.Errorf("%w: status %s", ErrRunFailed, run.Status)
		}

		if time.Now().After(deadline) {
			g.log.Warn().Str("run_id", runID).Dur("timeout", g.cfg.RunTimeout).Msg("assistant run deadline exceeded")
			return ErrRunTimeout
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = interval * 3 / 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}

func (g *Gateway) latestAssistantReply(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := g.client.ListMessage(ctx, threadID, &limit, &order, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil {
				return normalizeResponse(content.Text.Value), nil
			}
		}
	}
	return "", ErrEmptyReply
}

// UploadFile ships attachment bytes to the provider for assistant use.
func (g *Gateway) UploadFile(ctx context.Context, fileName string, data []byte) (string, error) {
	file, err := g.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    fileName,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return file.ID, nil
}

// BuildAssistant creates a retrieval assistant over the full current file set.
// Callers rebuild rather than patch, so the reference always reflects exactly
// the files attached to the session.
func (g *Gateway) BuildAssistant(ctx context.Context, fileIDs []string) (string, error) {
	name := "chatdeck session assistant"
	instructions := g.cfg.SystemPreamble
	assistant, err := g.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        g.cfg.AssistantModel,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeRetrieval}},
		FileIDs:      fileIDs,
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	return assistant.ID, nil
}

func (g *Gateway) DeleteFile(ctx context.Context, fileID string) error {
	if err := g.client.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (g *Gateway) DeleteAssistant(ctx context.Context, assistantRef string) error {
	if _, err := g.client.DeleteAssistant(ctx, assistantRef); err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	return nil
}

func (g *Gateway) buildMessages(prior []models.Turn, prompt string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prior)+2)
	if g.cfg.SystemPreamble != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.cfg.SystemPreamble,
		})
	}
	for _, turn := range prior {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// The provider habitually prefixes completions with one or two newlines.
// Strip at most the first two characters when they are newlines and leave
// everything else alone.
func normalizeResponse(text string) string {
	for i := 0; i < 2 && strings.HasPrefix(text, "\n"); i++ {
		text = text[1:]
	}
	return text
}

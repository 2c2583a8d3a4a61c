package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdeck/api/internal/config"
	"chatdeck/api/internal/models"
)

func testGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGateway(config.OpenAIConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL + "/v1",
		Model:           "gpt-3.5-turbo",
		AssistantModel:  "gpt-4-turbo-preview",
		SystemPreamble:  "You are a helpful assistant.",
		RunPollInterval: time.Millisecond,
		RunTimeout:      time.Second,
	}, zerolog.Nop())
}

func TestNormalizeResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no leading newline", "hello", "hello"},
		{"one leading newline", "\nhello", "hello"},
		{"two leading newlines", "\n\nhello", "hello"},
		{"three leading newlines keeps the third", "\n\n\nhello", "\nhello"},
		{"interior newlines untouched", "a\n\nb", "a\n\nb"},
		{"only newlines", "\n\n", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeResponse(tt.in))
		})
	}
}

func TestCompleteFreeform(t *testing.T) {
	var gotMessages []map[string]string

	gw := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Messages []map[string]string `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMessages = req.Messages

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "\n\nHello there"}, "finish_reason": "stop"}]
		}`)
	}))

	prior := []models.Turn{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hey"},
	}
	got, err := gw.CompleteFreeform(context.Background(), prior, "how are you?")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got)

	// system preamble + two prior turns + new prompt
	require.Len(t, gotMessages, 4)
	assert.Equal(t, "system", gotMessages[0]["role"])
	assert.Equal(t, "user", gotMessages[3]["role"])
	assert.Equal(t, "how are you?", gotMessages[3]["content"])
}

func TestCompleteFreeformStream(t *testing.T) {
	gw := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{"\n", "\nstream", "ed ", "reply"}
		for _, chunk := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": chunk}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	got, err := gw.CompleteFreeformStream(context.Background(), nil, "go")
	require.NoError(t, err)
	// fragments are concatenated in arrival order, then normalized
	assert.Equal(t, "streamed reply", got)
}

func TestCompleteWithAssistant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "thread_1", "object": "thread", "created_at": 1}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"id": "msg_1", "object": "thread.message", "thread_id": "thread_1", "role": "user"}`)
			return
		}
		fmt.Fprint(w, `{
			"object": "list",
			"data": [{
				"id": "msg_2",
				"thread_id": "thread_1",
				"role": "assistant",
				"content": [{"type": "text", "text": {"value": "\n\nfile says 42", "annotations": []}}]
			}],
			"first_id": "msg_2",
			"last_id": "msg_2",
			"has_more": false
		}`)
	})
	var polls atomic.Int32
	mux.HandleFunc("/v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run_1", "object": "thread.run", "thread_id": "thread_1", "assistant_id": "asst_1", "status": "queued"}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		status := "in_progress"
		if polls.Add(1) >= 2 {
			status = "completed"
		}
		fmt.Fprintf(w, `{"id": "run_1", "object": "thread.run", "thread_id": "thread_1", "assistant_id": "asst_1", "status": %q}`, status)
	})

	gw := testGateway(t, mux)

	got, err := gw.CompleteWithAssistant(context.Background(), "asst_1", "what does the file say?")
	require.NoError(t, err)
	assert.Equal(t, "file says 42", got)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestCompleteWithAssistantTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "thread_1", "object": "thread", "created_at": 1}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "msg_1", "object": "thread.message", "thread_id": "thread_1", "role": "user"}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run_1", "object": "thread.run", "thread_id": "thread_1", "assistant_id": "asst_1", "status": "queued"}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run_1", "object": "thread.run", "thread_id": "thread_1", "assistant_id": "asst_1", "status": "in_progress"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gw := NewGateway(config.OpenAIConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL + "/v1",
		RunPollInterval: time.Millisecond,
		RunTimeout:      20 * time.Millisecond,
	}, zerolog.Nop())

	_, err := gw.CompleteWithAssistant(context.Background(), "asst_1", "hello?")
	require.ErrorIs(t, err, ErrRunTimeout)
}

func TestCompleteWithAssistantRunFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "thread_1", "object": "thread", "created_at": 1}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "msg_1", "object": "thread.message", "thread_id": "thread_1", "role": "user"}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run_1", "object": "thread.run", "thread_id": "thread_1", "assistant_id": "asst_1", "status": "queued"}`)
	})
	mux.HandleFunc("/v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run_1", "object": "thread.run", "thread_id": "thread_1", "assistant_id": "asst_1", "status": "failed"}`)
	})

	gw := testGateway(t, mux)

	_, err := gw.CompleteWithAssistant(context.Background(), "asst_1", "hello?")
	require.ErrorIs(t, err, ErrRunFailed)
}

func TestBuildAssistantSendsFileSet(t *testing.T) {
	var gotFileIDs []string

	gw := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/assistants", r.URL.Path)

		var req struct {
			FileIDs []string `json:"file_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotFileIDs = req.FileIDs

		fmt.Fprint(w, `{"id": "asst_9", "object": "assistant", "model": "gpt-4-turbo-preview"}`)
	}))

	ref, err := gw.BuildAssistant(context.Background(), []string{"file_1", "file_2"})
	require.NoError(t, err)
	assert.Equal(t, "asst_9", ref)
	assert.Equal(t, []string{"file_1", "file_2"}, gotFileIDs)
}

func TestUploadFile(t *testing.T) {
	gw := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/files", r.URL.Path)
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		fmt.Fprint(w, `{"id": "file_7", "object": "file", "purpose": "assistants", "filename": "doc.pdf"}`)
	}))

	fileID, err := gw.UploadFile(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "file_7", fileID)
}

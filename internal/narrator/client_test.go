package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleforge/sceneengine/internal/domain"
)

func completionServer(t *testing.T, status int, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
		})
	}))
}

func TestNarrate_ReturnsRawContentAndUsage(t *testing.T) {
	var seen map[string]any
	srv := completionServer(t, http.StatusOK, "```json\n{\"scene_text\":\"x\"}\n```", &seen)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Model: "test-model"})
	require.NoError(t, err)

	comp, err := c.Narrate(context.Background(), domain.NarratorRequest{
		CampaignUniverse: "Ashfall",
		AISystemPrompt:   "Grim and terse.",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"scene_text":"x"}`, string(comp.Raw))
	assert.EqualValues(t, 120, comp.InputTokens)
	assert.EqualValues(t, 40, comp.OutputTokens)
	assert.Equal(t, "test-model", comp.Model)

	assert.Equal(t, "test-model", seen["model"])
	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestNarrate_StatusErrorIsTyped(t *testing.T) {
	srv := completionServer(t, http.StatusServiceUnavailable, "", nil)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	require.NoError(t, err)

	_, err = c.Narrate(context.Background(), domain.NarratorRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNarratorStatus))
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
}

func TestStripFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\nplain\n```", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFence(tt.in))
	}
}

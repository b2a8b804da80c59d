package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL_StripsChatCompletionsSuffix(t *testing.T) {
	got := normalizeBaseURL("https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions")
	assert.Equal(t, "https://dashscope.aliyuncs.com/compatible-mode/v1", got)
}

func TestNormalizeBaseURL_StripTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1", normalizeBaseURL("https://api.openai.com/v1/"))
}

func TestNormalizeBaseURL_StripSlashAndSuffix(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1", normalizeBaseURL("https://api.example.com/v1/chat/completions/"))
}

func TestNormalizeBaseURL_NoSuffixUnchanged(t *testing.T) {
	assert.Equal(t, "https://api.deepseek.com", normalizeBaseURL("https://api.deepseek.com"))
}

func TestNormalizeBaseURL_EmptyInput(t *testing.T) {
	assert.Equal(t, "", normalizeBaseURL(""))
}

func TestNewTier_FallsBackToSharedEnvVars(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "shared-key")
	t.Setenv("OPENAI_BASE_URL", "https://shared.example/v1")
	t.Setenv("OPENAI_MODEL", "shared-model")
	os.Unsetenv("PROPOSER_API_KEY")
	os.Unsetenv("PROPOSER_BASE_URL")
	os.Unsetenv("PROPOSER_MODEL")

	c := NewTier("PROPOSER")
	assert.Equal(t, "shared-key", c.apiKey)
	assert.Equal(t, "https://shared.example/v1", c.baseURL)
	assert.Equal(t, "shared-model", c.model)
}

func TestNewTier_PrefersTierSpecificOverride(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "shared-model")
	t.Setenv("VERIFIER_MODEL", "verifier-only-model")

	c := NewTier("VERIFIER")
	assert.Equal(t, "verifier-only-model", c.model)
}

func TestComplete_SendsSystemAndUserTurnAndParsesUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		body := `{"choices":[{"message":{"content":"{\"decision\":\"approve\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, apiKey: "k", model: "m", label: "TEST", httpClient: srv.Client()}
	out, err := c.Complete(context.Background(), "propose a fix", "you are a verifier", Options{MaxTokens: 512, Temperature: 0.2, Intent: IntentAnalysis})
	require.NoError(t, err)
	assert.Equal(t, `{"decision":"approve"}`, out.Text)
	assert.Equal(t, 15, out.Usage.TotalTokens)
	assert.False(t, out.Truncated)
}

func TestComplete_MarksTruncatedOnLengthFinishReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := `{"choices":[{"message":{"content":"partial"},"finish_reason":"length"}],"usage":{"total_tokens":5}}`
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, apiKey: "k", model: "m", label: "TEST", httpClient: srv.Client()}
	out, err := c.Complete(context.Background(), "p", "s", Options{MaxTokens: 4})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
}

func TestComplete_PropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, apiKey: "k", model: "m", label: "TEST", httpClient: srv.Client()}
	_, err := c.Complete(context.Background(), "p", "s", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestComplete_PropagatesHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, apiKey: "k", model: "m", label: "TEST", httpClient: srv.Client()}
	_, err := c.Complete(context.Background(), "p", "s", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestStripThinkBlocks_RemovesReasoningBlock(t *testing.T) {
	in := "<think>let me reason about this</think>{\"decision\":\"approve\"}"
	assert.Equal(t, `{"decision":"approve"}`, StripThinkBlocks(in))
}

func TestStripThinkBlocks_UnclosedBlockTruncatesAtStart(t *testing.T) {
	in := "<think>still reasoning, never closes"
	assert.Equal(t, "", StripThinkBlocks(in))
}

func TestStripFences_RemovesMarkdownFenceAndThinkBlock(t *testing.T) {
	in := "<think>reasoning</think>```json\n{\"decision\":\"approve\"}\n```"
	assert.Equal(t, `{"decision":"approve"}`, StripFences(in))
}

func TestStripFences_PassesThroughPlainJSON(t *testing.T) {
	assert.Equal(t, `{"decision":"approve"}`, StripFences(`{"decision":"approve"}`))
}

// internal/llmclient/gateway_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
)

func geminiSuccessBody(text string) string {
	return fmt.Sprintf(`{
		"candidates": [{"content": {"parts": [{"text": %q}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 7, "totalTokenCount": 19}
	}`, text)
}

func newTestGateway(t *testing.T, endpoint string) *GeminiGateway {
	t.Helper()
	g, err := NewGeminiGateway(config.GatewayConfig{
		Provider:   ProviderGemini,
		Model:      "gemini-2.0-flash",
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestGatewayExecuteSuccess(t *testing.T) {
	var gotPayload geminiRequestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, geminiSuccessBody(`{"selector": "#email"}`))
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)
	resp, err := g.Execute(context.Background(), schemas.TaskDisambiguate, schemas.GatewayRequest{
		Prompt:       "find the email field",
		SystemPrompt: "you pick selectors",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"selector": "#email"}`, resp.Content)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, schemas.TokenUsage{Prompt: 12, Completion: 7, Total: 19}, resp.Usage)

	require.Len(t, gotPayload.Contents, 1)
	assert.Equal(t, "find the email field", gotPayload.Contents[0].Parts[0].Text)
	require.NotNil(t, gotPayload.SystemInstruction)
	assert.Equal(t, "application/json", gotPayload.GenerationConfig.ResponseMimeType,
		"disambiguation requests must force JSON output")
}

func TestGatewayRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, geminiSuccessBody("ok"))
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)
	resp, err := g.Execute(context.Background(), schemas.TaskDisambiguate, schemas.GatewayRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGatewayDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "bad request"}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)
	_, err := g.Execute(context.Background(), schemas.TaskDisambiguate, schemas.GatewayRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrProvider)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestGatewaySafetyBlockIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)
	_, err := g.Execute(context.Background(), schemas.TaskDisambiguate, schemas.GatewayRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewGatewayRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiGateway(config.GatewayConfig{Model: "m"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewGatewayRejectsUnknownProvider(t *testing.T) {
	_, err := NewGateway(config.GatewayConfig{Provider: "openllama", APIKey: "k"}, zap.NewNop())
	assert.Error(t, err)
}

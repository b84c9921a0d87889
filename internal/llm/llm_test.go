package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() domain.ResolutionRequest {
	return domain.ResolutionRequest{
		DisputeID:   uuid.New(),
		Title:       "Rent dispute",
		Description: "Who pays the last month",
		Statements: []domain.PartyStatement{
			{Party: "Party A", Text: "I paid the deposit.", Attachments: []string{"receipt.jpg"}},
			{Party: "Party B", Text: "The deposit covered damages."},
		},
	}
}

func TestParseDraft(t *testing.T) {
	draft, err := parseDraft("```json\n{\"summary\":\"s\",\"decision\":\"split\",\"rationale\":\"r\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "split", draft.Decision)

	_, err = parseDraft("not json")
	assert.Error(t, err)

	_, err = parseDraft(`{"summary":"s","decision":"  ","rationale":"r"}`)
	assert.Error(t, err)
}

func TestBuildResolvePrompt(t *testing.T) {
	prompt := buildResolvePrompt(sampleRequest())
	assert.Contains(t, prompt, "Rent dispute")
	assert.Contains(t, prompt, "[Party A] I paid the deposit.")
	assert.Contains(t, prompt, "attached: receipt.jpg")
	assert.Contains(t, prompt, "[Party B] The deposit covered damages.")
}

func TestOpenAIClient_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "test-model", req.Model)
		assert.True(t, strings.Contains(req.Messages[0].Content, "Rent dispute"))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"s\",\"decision\":\"Split the rent\",\"rationale\":\"r\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key").WithEndpoint(srv.URL, "test-model")
	draft, err := c.Resolve(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Split the rent", draft.Decision)
}

func TestOpenAIClient_Resolve_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k").WithEndpoint(srv.URL, "m")
	_, err := c.Resolve(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicClient_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"summary\":\"s\",\"decision\":\"Refund half\",\"rationale\":\"r\"}"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.url = srv.URL
	draft, err := c.Resolve(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Refund half", draft.Decision)
}

func TestMockClient(t *testing.T) {
	c := NewMockClient()
	c.FailFirst = 1

	_, err := c.Resolve(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrMockFailure)

	draft, err := c.Resolve(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Contains(t, draft.Decision, "split the difference")
	assert.Equal(t, 2, c.CallCount())

	c.Reset()
	c.Delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Resolve(ctx, sampleRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderMock, "")
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	_, err = NewClient(ProviderOpenAI, "")
	assert.Error(t, err)

	c, err = NewClient(ProviderGrok, "xai-key")
	require.NoError(t, err)
	assert.Equal(t, grokChatURL, c.(*OpenAIClient).url)

	_, err = NewClient("llama", "k")
	assert.Error(t, err)
}

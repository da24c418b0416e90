package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// completionServer fakes the Azure endpoint. handle receives the decoded
// request body after the path and query have been checked.
func completionServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body completionRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))

		var body completionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handle(w, r, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func keyOptions(endpoint string) AzureOptions {
	return AzureOptions{
		EndpointURL: endpoint + "/",
		APIKey:      "test-key",
		APIVersion:  "2024-02-01",
		Deployment:  "gpt-4o",
	}
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewAzureClient_RequiresSettings(t *testing.T) {
	_, err := NewAzureClient(AzureOptions{APIKey: "k"}, testLogger())
	assert.Error(t, err)

	_, err = NewAzureClient(AzureOptions{EndpointURL: "https://x", APIVersion: "v", Deployment: "d"}, testLogger())
	assert.Error(t, err, "no credentials at all")

	_, err = NewAzureClient(AzureOptions{
		EndpointURL: "https://x", APIVersion: "v", Deployment: "d",
		ClientID: "c", ClientSecret: "s",
	}, testLogger())
	assert.Error(t, err, "client credentials without tenant or token url")
}

// =========================================================================
// API KEY
// =========================================================================

func TestComplete_APIKey(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		if !assert.Len(t, body.Messages, 2) {
			return
		}
		assert.Equal(t, message{Role: "system", Content: SystemPrompt}, body.Messages[0])
		assert.Equal(t, message{Role: "user", Content: "hello?"}, body.Messages[1])
		assert.Equal(t, MaxTokens, body.MaxTokens)
		assert.Equal(t, 1.0, body.Temperature)
		assert.Equal(t, 1.0, body.TopP)

		writeReply(w, "hi there")
	})

	client, err := NewAzureClient(keyOptions(srv.URL), testLogger())
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), "hello?")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		w.Write([]byte(`{"choices":[]}`))
	})

	client, err := NewAzureClient(keyOptions(srv.URL), testLogger())
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestComplete_ProviderError(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"429","message":"Rate limit reached"}}`))
	})

	client, err := NewAzureClient(keyOptions(srv.URL), testLogger())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "x")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "Rate limit reached", statusErr.Message)
}

func TestComplete_NonJSONErrorBody(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	client, err := NewAzureClient(keyOptions(srv.URL), testLogger())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "x")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Empty(t, statusErr.Code)
}

func TestComplete_MalformedSuccessBody(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		w.Write([]byte(`{"choices":`))
	})

	client, err := NewAzureClient(keyOptions(srv.URL), testLogger())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "x")
	assert.Error(t, err)
}

func TestComplete_ContextCancelled(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		writeReply(w, "too late")
	})

	client, err := NewAzureClient(keyOptions(srv.URL), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Complete(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

// =========================================================================
// CLIENT CREDENTIALS
// =========================================================================

func TestComplete_ClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, cognitiveServicesScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"entra-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		assert.Equal(t, "Bearer entra-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("api-key"))
		writeReply(w, "authorised reply")
	})

	client, err := NewAzureClient(AzureOptions{
		EndpointURL:  srv.URL,
		APIVersion:   "2024-02-01",
		Deployment:   "gpt-4o",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     tokenSrv.URL,
	}, testLogger())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		reply, err := client.Complete(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "authorised reply", reply)
	}
	assert.Equal(t, int32(1), tokenCalls.Load(), "token should be cached between calls")
}

func TestComplete_TokenEndpointFailure(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(tokenSrv.Close)

	var completions atomic.Int32
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, body completionRequest) {
		completions.Add(1)
		writeReply(w, "should not happen")
	})

	client, err := NewAzureClient(AzureOptions{
		EndpointURL: srv.URL, APIVersion: "2024-02-01", Deployment: "gpt-4o",
		ClientID: "c", ClientSecret: "wrong", TokenURL: tokenSrv.URL,
	}, testLogger())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "chat:"))
	assert.Zero(t, completions.Load())
}

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// cognitiveServicesScope is the Entra ID scope for Azure OpenAI.
const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// maxErrorBody caps how much of a failed response is kept for the log.
const maxErrorBody = 4 << 10

// AzureOptions configures AzureClient. Either APIKey or the
// TenantID/ClientID/ClientSecret triple must be set.
type AzureOptions struct {
	EndpointURL string
	APIKey      string
	APIVersion  string
	Deployment  string

	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL overrides the Entra ID token endpoint derived from TenantID.
	TokenURL string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// AzureClient calls the Azure OpenAI chat completions endpoint.
type AzureClient struct {
	http   *http.Client
	url    string
	apiKey string
	logger *slog.Logger
}

var _ Provider = (*AzureClient)(nil)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: provider returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat: provider returned %d", e.StatusCode)
}

// NewAzureClient builds a client from opts. With client credentials, the
// returned client fetches and refreshes bearer tokens on its own.
func NewAzureClient(opts AzureOptions, logger *slog.Logger) (*AzureClient, error) {
	if opts.EndpointURL == "" || opts.Deployment == "" || opts.APIVersion == "" {
		return nil, errors.New("chat: endpoint, deployment and api version are required")
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &AzureClient{
		url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(opts.EndpointURL, "/"),
			url.PathEscape(opts.Deployment),
			url.QueryEscape(opts.APIVersion)),
		logger: logger,
	}

	switch {
	case opts.APIKey != "":
		client.apiKey = opts.APIKey
		client.http = &http.Client{Transport: base.Transport, Timeout: timeout}
	case opts.ClientID != "" && opts.ClientSecret != "" && (opts.TenantID != "" || opts.TokenURL != ""):
		tokenURL := opts.TokenURL
		if tokenURL == "" {
			tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(opts.TenantID))
		}
		cc := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{cognitiveServicesScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		// The token source lives as long as the client, so it gets a
		// background context carrying the base HTTP client.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client.http = cc.Client(ctx)
		client.http.Timeout = timeout
	default:
		return nil, errors.New("chat: either an api key or client credentials are required")
	}

	return client, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt with the fixed system prompt and returns the first
// choice's content.
func (c *AzureClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Messages: []message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
		TopP:        TopP,
	})
	if err != nil {
		return "", fmt.Errorf("chat: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: calling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil {
			statusErr.Code = apiErr.Error.Code
			statusErr.Message = apiErr.Error.Message
		}
		return "", statusErr
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat: decoding response: %w", err)
	}

	c.logger.Debug("chat completion",
		slog.Int("choices", len(out.Choices)),
		slog.Duration("duration", time.Since(start)),
	)

	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

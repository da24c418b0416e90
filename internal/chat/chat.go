// Package chat talks to the chat-completion provider.
//
// The only provider is Azure OpenAI. It is reached over its REST API with
// either a static api-key header or an Entra ID bearer token obtained
// through the OAuth2 client-credentials grant.
package chat

import "context"

// Provider answers a single user prompt.
//
// An empty reply with a nil error means the provider returned no choices.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Request settings sent with every completion.
const (
	SystemPrompt = "You are a helpful assistant."
	MaxTokens    = 4096
	Temperature  = 1.0
	TopP         = 1.0
)

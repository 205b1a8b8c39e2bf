// Package api provides the HTTP service exposing Bedrock Converse completions
// through the SDK and raw HTTP backends.
package api

import "github.com/papercomputeco/converse/pkg/llm"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string

	// Request carries the model, system prompt and inference parameters every
	// route starts from. Messages are ignored.
	Request llm.ChatRequest
}

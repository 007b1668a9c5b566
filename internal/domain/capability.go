package domain

import "context"

// ChatMessage is one message in an LLM conversation.
type ChatMessage struct {
	Role    string // "system" | "user" | "assistant" | "function"
	Name    string // function name for role == "function"
	Content string
}

// FunctionDef describes one callable function exposed to the LLM.
type FunctionDef struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// FunctionCall is the LLM's intent to invoke a function.
type FunctionCall struct {
	Name      string
	Arguments string // raw JSON
}

// ChatResult is either final text or a function-call intent.
type ChatResult struct {
	Content      string
	FunctionCall *FunctionCall
}

// Completer is the LLM capability the core consumes. Implementations retry
// transient failures internally with bounded backoff.
type Completer interface {
	// Complete runs a plain system+user exchange and returns the text.
	Complete(ctx context.Context, system, user string) (string, error)
	// Chat runs a multi-turn exchange, optionally with callable functions.
	Chat(ctx context.Context, messages []ChatMessage, functions []FunctionDef) (*ChatResult, error)
}

// Embedder converts texts to embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Transcriber converts an audio payload to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Sender is the messaging transport: deliver text to a phone number.
// A failed or timed-out send is a terminal, logged outcome, not an error that
// propagates past the routing boundary.
type Sender interface {
	Send(ctx context.Context, phoneNumber, text string) error
}

// Notifier receives internal ops alerts (complaints, suggestions, failures).
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

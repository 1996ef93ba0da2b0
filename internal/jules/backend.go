package jules

import (
	"context"
	"errors"

	"julep/internal/llm"
)

// Backend adapts the polling pipeline to the provider seam shared with the
// chat backends, so the REPL drives the remote coding agent the same way it
// drives a streaming completion.
type Backend struct {
	poller *Poller
}

func NewBackend(client *Client, registry *SessionRegistry, opts PollerOptions) *Backend {
	return &Backend{poller: NewPoller(client, registry, opts)}
}

// ChatStream satisfies llm.StreamClient. The most recent user message is the
// prompt; the request's session field keys the remote session reuse.
func (b *Backend) ChatStream(ctx context.Context, req llm.ChatRequest, sink llm.Sink) error {
	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}
	if prompt == "" {
		return errors.New("no user prompt to submit")
	}
	key := req.Session
	if key == "" {
		key = "default"
	}
	return b.poller.Run(ctx, key, prompt, sink)
}

package llm

import "context"

// Sink receives incrementally rendered text from a provider. Consumers cannot
// tell whether the producer truly streams or simulates streaming by polling.
// Both methods may be called multiple times and must not block indefinitely.
type Sink interface {
	PushText(text string)
	Done()
}

// StreamClient is implemented by providers that deliver their response
// incrementally through a Sink instead of a single ChatResponse.
type StreamClient interface {
	ChatStream(ctx context.Context, req ChatRequest, sink Sink) error
}

// SinkFuncs adapts plain functions to the Sink interface.
type SinkFuncs struct {
	OnText func(string)
	OnDone func()
}

func (s SinkFuncs) PushText(text string) {
	if s.OnText != nil {
		s.OnText(text)
	}
}

func (s SinkFuncs) Done() {
	if s.OnDone != nil {
		s.OnDone()
	}
}

// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the completion/embedding provider contract and its
// OpenAI implementation.
package llm

import (
	"context"
	"errors"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

// ErrOverloaded is returned when the provider rejects the request because
// it is rate-limited or out of quota. Callers map it to a 503 response.
var ErrOverloaded = errors.New("completion provider overloaded")

// GenerationParams carries optional sampling parameters. Nil fields fall
// back to the provider's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType discriminates streaming events.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a single unit of streamed output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     string
}

// StreamCallback receives events as they are generated. Returning an error
// aborts streaming (used for client disconnects). Callbacks are invoked in
// token order from a single goroutine.
type StreamCallback func(StreamEvent) error

// CompletionClient is the provider contract the pipeline depends on.
type CompletionClient interface {
	// Embed converts text into a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ChatStream requests a token stream for the message list and relays
	// each token through callback. If the provider fails before producing
	// the first token, the error classifies the failure: ErrOverloaded
	// for provider-side rate limits, context.DeadlineExceeded (wrapped)
	// when the start-timeout budget elapsed. Mid-stream failures are
	// reported both via a StreamEventError event and the returned error.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}

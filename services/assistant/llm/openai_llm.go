// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

var tracer = otel.Tracer("assistant.llm.openai")

// OpenAIClient implements CompletionClient against the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	startTimeout   time.Duration
}

// NewOpenAIClient builds a client from OPENAI_API_KEY (falling back to the
// container secret file), the given model names, and a start-timeout
// budget for streaming completions.
func NewOpenAIClient(model, embeddingModel string, startTimeout time.Duration) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the OpenAI API key from the container secret")
	}
	slog.Info("Initializing OpenAI client", "model", model, "embedding_model", embeddingModel)
	return &OpenAIClient{
		client:         openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		startTimeout:   startTimeout,
	}, nil
}

// NewOpenAIClientWithConfig is like NewOpenAIClient but accepts a custom
// client config. Used by tests to point at a stub server.
func NewOpenAIClientWithConfig(conf openai.ClientConfig, model, embeddingModel string, startTimeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(conf),
		model:          model,
		embeddingModel: embeddingModel,
		startTimeout:   startTimeout,
	}
}

// Embed implements CompletionClient.
func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Embed")
	defer span.End()
	span.SetAttributes(attribute.String("llm.embedding_model", o.embeddingModel))

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI embeddings call failed", "error", err)
		return nil, fmt.Errorf("embeddings call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings call returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// ChatStream implements CompletionClient.
//
// The start-timeout budget is raced against the provider with a timer
// that cancels the request only while no token has arrived yet. Once the
// first token lands the timer is disarmed and the stream runs on the
// caller's context alone.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := tracer.Start(ctx, "OpenAIClient.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req := openai.ChatCompletionRequest{
		Model:  o.model,
		Stream: true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var firstToken atomic.Bool
	var timedOut atomic.Bool
	timer := time.AfterFunc(o.startTimeout, func() {
		if !firstToken.Load() {
			timedOut.Store(true)
			cancel()
		}
	})
	defer timer.Stop()

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.classifyStartError(err, timedOut.Load())
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return callback(StreamEvent{Type: StreamEventDone})
		}
		if err != nil {
			if !firstToken.Load() {
				span.RecordError(err)
				return o.classifyStartError(err, timedOut.Load())
			}
			span.RecordError(err)
			slog.Error("OpenAI stream failed mid-generation", "error", err)
			_ = callback(StreamEvent{Type: StreamEventError, Err: err.Error()})
			return fmt.Errorf("stream receive failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if firstToken.CompareAndSwap(false, true) {
			timer.Stop()
		}
		if cbErr := callback(StreamEvent{Type: StreamEventToken, Content: content}); cbErr != nil {
			return cbErr
		}
	}
}

// classifyStartError maps a failure to start streaming onto the sentinel
// errors the pipeline distinguishes.
func (o *OpenAIClient) classifyStartError(err error, timedOut bool) error {
	if timedOut {
		slog.Error("OpenAI stream start exceeded the timeout budget", "timeout", o.startTimeout)
		return fmt.Errorf("completion start timed out after %s: %w", o.startTimeout, context.DeadlineExceeded)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		slog.Error("OpenAI rejected the request as rate-limited", "error", err)
		return fmt.Errorf("completion rejected: %w", ErrOverloaded)
	}

	slog.Error("OpenAI stream failed to start", "error", err)
	return fmt.Errorf("failed to start the completion stream: %w", err)
}

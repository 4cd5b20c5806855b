// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers for the assistant service.
//
// The ask handler sequences the full pipeline: rate limit, body
// validation, prompt guard, embedding, vector search, retrieval guard,
// keyword fallback, context assembly, streaming completion, and the
// asynchronous conversation log. Every stage can short-circuit with a
// terminal response.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/davidmh/portfolio-assistant/services/assistant/config"
	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
	"github.com/davidmh/portfolio-assistant/services/assistant/guard"
	"github.com/davidmh/portfolio-assistant/services/assistant/llm"
	"github.com/davidmh/portfolio-assistant/services/assistant/logsink"
	"github.com/davidmh/portfolio-assistant/services/assistant/observability"
	"github.com/davidmh/portfolio-assistant/services/assistant/rag"
	"github.com/davidmh/portfolio-assistant/services/assistant/ratelimit"
	"github.com/davidmh/portfolio-assistant/services/assistant/store"
)

var tracer = otel.Tracer("assistant.handlers")

// errClientGone aborts the relay loop when the visitor disconnects.
var errClientGone = errors.New("client disconnected")

// logTimeout bounds the detached conversation-log write.
const logTimeout = 10 * time.Second

// AskHandler owns the pipeline collaborators.
type AskHandler struct {
	cfg     config.Config
	limiter *ratelimit.Limiter
	guard   *guard.Engine
	store   store.DocumentStore
	llm     llm.CompletionClient
	logger  logsink.ConversationLogger
}

// NewAskHandler wires the pipeline together.
func NewAskHandler(
	cfg config.Config,
	limiter *ratelimit.Limiter,
	guardEngine *guard.Engine,
	docStore store.DocumentStore,
	completions llm.CompletionClient,
	logger logsink.ConversationLogger,
) *AskHandler {
	return &AskHandler{
		cfg:     cfg,
		limiter: limiter,
		guard:   guardEngine,
		store:   docStore,
		llm:     completions,
		logger:  logger,
	}
}

// Handle processes POST /v1/ask.
func (h *AskHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		clientIP := c.ClientIP()

		ctx, span := tracer.Start(c.Request.Context(), "AskHandler.Handle")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.id", requestID),
		)

		logger := slog.With("request_id", requestID, "client_ip", clientIP)

		// ==================================================================
		// Rate limit
		// ==================================================================
		if !h.limiter.Check(clientIP, time.Now()) {
			logger.Warn("Rate limit exceeded")
			h.recordOutcome(observability.OutcomeRateLimited, start)
			h.logAsync(datatypes.ConversationLogEntry{
				IP:     clientIP,
				Reason: datatypes.ReasonRateLimited,
				Answer: "Too many requests",
			})
			c.String(http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		// ==================================================================
		// Body validation
		// ==================================================================
		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Error("Failed to parse request body", "error", err)
			h.recordOutcome(observability.OutcomeBadRequest, start)
			c.String(http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Question == "" {
			h.recordOutcome(observability.OutcomeBadRequest, start)
			c.String(http.StatusBadRequest, "Missing question")
			return
		}

		// ==================================================================
		// Prompt guard
		// ==================================================================
		verdict := h.guard.Inspect(req.Question)
		if !verdict.Allowed {
			// The question itself is deliberately left out of the stored
			// record; only the category and matched pattern are persisted.
			logger.Warn("Prompt guard blocked the question",
				"category", verdict.Category,
				"pattern", verdict.MatchedPattern)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordGuardBlock(verdict.Category)
			}
			h.recordOutcome(observability.OutcomeGuardBlocked, start)
			h.logAsync(datatypes.ConversationLogEntry{
				IP:     clientIP,
				Reason: verdict.Category,
				Answer: verdict.MatchedPattern,
			})
			h.streamCanned(c, guardedAnswer)
			return
		}

		// ==================================================================
		// Embedding + retrieval
		// ==================================================================
		vector, err := h.llm.Embed(ctx, req.Question)
		if err != nil {
			logger.Error("Failed to embed the question", "error", err)
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			h.recordOutcome(observability.OutcomeInternalError, start)
			c.String(http.StatusInternalServerError,
				"The assistant is temporarily unavailable. Please try again later.")
			return
		}

		rawDocs, err := h.store.SearchSimilar(ctx, vector, h.cfg.TopK)
		if err != nil {
			logger.Error("Vector search failed", "error", err)
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			h.recordOutcome(observability.OutcomeRetrievalError, start)
			c.String(http.StatusInternalServerError, "Retrieval failed")
			return
		}

		retrieval := guard.InspectRetrieval(rawDocs, h.cfg.MinSimilarity)
		if !retrieval.Allowed {
			logger.Error("Retrieval returned an invalid payload", "reason", retrieval.Reason)
			h.recordOutcome(observability.OutcomeRetrievalError, start)
			c.String(http.StatusInternalServerError, "Retrieval failed")
			return
		}

		docs := retrieval.Docs
		if len(docs) == 0 {
			logger.Info("Vector search weak, running keyword fallback")
			keywordDocs, kerr := h.store.SearchKeyword(ctx, req.Question, h.cfg.KeywordLimit)
			if kerr != nil {
				logger.Warn("Keyword fallback failed", "error", kerr)
			} else {
				docs = keywordDocs
			}
		}

		// ==================================================================
		// Context assembly
		// ==================================================================
		built := rag.BuildContext(docs, h.cfg.MaxContextChars)
		if built.Context == "" {
			answer := pickFallbackAnswer()
			logger.Info("No grounding available, returning fallback answer")
			h.recordOutcome(observability.OutcomeFallback, start)
			h.logAsync(datatypes.ConversationLogEntry{
				IP:       clientIP,
				Question: req.Question,
				Reason:   datatypes.ReasonFallback,
				Answer:   answer,
			})
			h.streamCanned(c, answer)
			return
		}
		span.SetAttributes(
			attribute.Int("context.chars", built.TotalChars),
			attribute.Bool("context.truncated", built.Truncated),
		)

		// ==================================================================
		// Streaming completion
		// ==================================================================
		writer, err := NewTextStreamWriter(c.Writer)
		if err != nil {
			logger.Error("Streaming unsupported by the response writer", "error", err)
			h.recordOutcome(observability.OutcomeInternalError, start)
			c.String(http.StatusInternalServerError,
				"The assistant is temporarily unavailable. Please try again later.")
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.StreamStarted()
			defer m.StreamEnded()
		}

		temperature := float32(0)
		maxTokens := 300
		params := llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		}

		var answer strings.Builder
		firstToken := true

		streamErr := h.llm.ChatStream(ctx, composeMessages(built.Context, req.Question), params,
			func(event llm.StreamEvent) error {
				if event.Type != llm.StreamEventToken {
					return nil
				}
				if c.Request.Context().Err() != nil {
					return errClientGone
				}
				if firstToken {
					firstToken = false
					if m := observability.DefaultMetrics; m != nil {
						m.RecordTimeToFirstToken(time.Since(start).Seconds())
					}
				}
				if werr := writer.WriteChunk(event.Content); werr != nil {
					return errClientGone
				}
				answer.WriteString(event.Content)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordToken()
				}
				return nil
			})

		if streamErr != nil {
			h.handleStreamFailure(c, logger, writer, streamErr, clientIP, req.Question, answer.String(), start)
			return
		}

		h.recordOutcome(observability.OutcomeSuccess, start)
		h.logAsync(datatypes.ConversationLogEntry{
			IP:       clientIP,
			Question: req.Question,
			Reason:   datatypes.ReasonSuccess,
			Answer:   answer.String(),
		})
	}
}

// handleStreamFailure maps completion failures onto terminal responses.
// Failures before the first byte reaches the client still get a proper
// status code; failures after that truncate the stream with a visible
// marker instead.
func (h *AskHandler) handleStreamFailure(
	c *gin.Context,
	logger *slog.Logger,
	writer StreamWriter,
	streamErr error,
	clientIP, question, partial string,
	start time.Time,
) {
	if errors.Is(streamErr, errClientGone) {
		logger.Info("Client disconnected mid-stream")
		if m := observability.DefaultMetrics; m != nil {
			m.RecordClientDisconnect()
		}
		h.recordOutcome(observability.OutcomeStreamError, start)
		return
	}

	if writer.Started() {
		logger.Error("Completion stream failed mid-generation", "error", streamErr)
		_ = writer.WriteChunk(interruptionMarker)
		h.recordOutcome(observability.OutcomeStreamError, start)
		h.logAsync(datatypes.ConversationLogEntry{
			IP:       clientIP,
			Question: question,
			Reason:   datatypes.ReasonError,
			Answer:   partial + interruptionMarker,
		})
		return
	}

	switch {
	case errors.Is(streamErr, llm.ErrOverloaded):
		logger.Error("Completion provider is overloaded", "error", streamErr)
		h.recordOutcome(observability.OutcomeOverloaded, start)
		h.logAsync(datatypes.ConversationLogEntry{
			IP:       clientIP,
			Question: question,
			Reason:   datatypes.ReasonFallback,
			Answer:   "The assistant is temporarily rate-limited. Please try again later.",
		})
		c.Header("Retry-After", "60")
		c.String(http.StatusServiceUnavailable,
			"The assistant is temporarily rate-limited. Please try again later.")

	case errors.Is(streamErr, context.DeadlineExceeded):
		logger.Error("Completion start exceeded the timeout budget", "error", streamErr)
		h.recordOutcome(observability.OutcomeTimeout, start)
		h.logAsync(datatypes.ConversationLogEntry{
			IP:       clientIP,
			Question: question,
			Reason:   datatypes.ReasonFallback,
			Answer:   "The assistant is taking too long to respond. Please try again.",
		})
		c.String(http.StatusGatewayTimeout,
			"The assistant is taking too long to respond. Please try again.")

	default:
		logger.Error("Completion stream failed to start", "error", streamErr)
		h.recordOutcome(observability.OutcomeInternalError, start)
		h.logAsync(datatypes.ConversationLogEntry{
			IP:       clientIP,
			Question: question,
			Reason:   datatypes.ReasonError,
			Answer:   "The assistant is temporarily unavailable. Please try again later.",
		})
		c.String(http.StatusInternalServerError,
			"The assistant is temporarily unavailable. Please try again later.")
	}
}

// streamCanned delivers a fixed answer through the same streaming surface
// a generated answer would use.
func (h *AskHandler) streamCanned(c *gin.Context, answer string) {
	writer, err := NewTextStreamWriter(c.Writer)
	if err != nil {
		c.String(http.StatusOK, answer)
		return
	}
	if werr := writer.WriteChunk(answer); werr != nil {
		slog.Debug("Failed to deliver canned answer", "error", werr)
	}
}

// logAsync fires the conversation log write without blocking the response.
// The write runs on a detached context so it survives the request ending.
func (h *AskHandler) logAsync(entry datatypes.ConversationLogEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), logTimeout)
		defer cancel()
		h.logger.Log(ctx, entry)
	}()
}

func (h *AskHandler) recordOutcome(outcome observability.Outcome, start time.Time) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOutcome(outcome, time.Since(start).Seconds())
	}
}

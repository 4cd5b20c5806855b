// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logsink writes conversation outcomes to an append-only external
// log store. Writes are a side channel: the pipeline never reads them
// back, never blocks a response on them, and never surfaces their
// failures to the caller.
package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

// ConversationLogger is the sink contract. Log swallows failures by
// design; implementations trace them internally and return nothing.
type ConversationLogger interface {
	Log(ctx context.Context, entry datatypes.ConversationLogEntry)
}

// SupabaseLogger appends entries to the abuse_logs table via the Supabase
// REST API.
//
// Outbound writes are paced with a token bucket so a burst of guarded or
// rate-limited requests cannot hammer the sink; entries beyond the burst
// wait, and give up when their context expires.
type SupabaseLogger struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pacer      *rate.Limiter
}

// NewSupabaseLogger builds a logger for the given project URL and anon
// key. An empty baseURL yields a logger that drops entries with a debug
// trace, which keeps local development quiet.
func NewSupabaseLogger(baseURL, apiKey string) *SupabaseLogger {
	return &SupabaseLogger{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		pacer:      rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Log implements ConversationLogger.
func (l *SupabaseLogger) Log(ctx context.Context, entry datatypes.ConversationLogEntry) {
	if l.baseURL == "" {
		slog.Debug("Log sink not configured, dropping conversation entry", "reason", entry.Reason)
		return
	}
	if err := l.pacer.Wait(ctx); err != nil {
		slog.Warn("Gave up waiting to write a conversation log entry", "error", err)
		return
	}

	body, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("Failed to marshal a conversation log entry", "error", err)
		return
	}

	url := fmt.Sprintf("%s/rest/v1/abuse_logs", l.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		slog.Warn("Failed to build the log sink request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", l.apiKey)
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		slog.Warn("Conversation log write failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("Log sink rejected a conversation entry",
			"status_code", resp.StatusCode,
			"response", string(respBody),
		)
	}
}

// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"sync"
)

// StreamWriter relays answer chunks to the client as plain text.
// Headers are deferred until the first chunk so a failure before any
// output can still produce a JSON error response.
type StreamWriter interface {
	// WriteChunk sends one chunk of answer text, flushing immediately.
	WriteChunk(chunk string) error

	// Started reports whether any bytes have been written to the client.
	Started() bool
}

// ==========================================================================
// Plain-text implementation
// ==========================================================================

type textStreamWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewTextStreamWriter wraps a ResponseWriter for chunked plain-text output.
// Returns an error if the writer does not support flushing.
func NewTextStreamWriter(w http.ResponseWriter) (StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	return &textStreamWriter{w: w, flusher: flusher}, nil
}

func (s *textStreamWriter) WriteChunk(chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := s.w.Write([]byte(chunk)); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}

	s.flusher.Flush()
	return nil
}

func (s *textStreamWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

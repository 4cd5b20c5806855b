// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config collects the assistant's environment-driven settings.
//
// Every value has a working default so the service boots in a local
// environment with nothing but OPENAI_API_KEY set. Invalid values are
// logged and replaced with the default rather than failing startup.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the request pipeline.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// AllowedOrigins is the fixed CORS allow-list. Requests from any
	// other origin receive Access-Control-Allow-Origin: null.
	AllowedOrigins []string

	// RateWindow and RateMaxRequests define the per-client sliding window.
	RateWindow      time.Duration
	RateMaxRequests int

	// MinSimilarity is the retrieval-guard confidence threshold.
	MinSimilarity float64

	// TopK is the vector-search result count; KeywordLimit caps the
	// keyword fallback result set.
	TopK         int
	KeywordLimit int

	// MaxContextChars bounds the assembled prompt context.
	MaxContextChars int

	// CompletionTimeout bounds how long the pipeline waits for the
	// completion provider to start streaming.
	CompletionTimeout time.Duration

	// CompletionModel and EmbeddingModel name the provider models.
	CompletionModel string
	EmbeddingModel  string

	// WeaviateURL locates the document store; WeaviateClass is the
	// knowledge-base class queried by the pipeline.
	WeaviateURL   string
	WeaviateClass string

	// SupabaseURL and SupabaseAnonKey locate the conversation log sink.
	// An empty URL disables logging (entries are dropped with a debug trace).
	SupabaseURL     string
	SupabaseAnonKey string
}

// Load reads the configuration from the environment, applying defaults
// for anything unset or unparseable.
func Load() Config {
	cfg := Config{
		Port:              envString("ASSISTANT_PORT", "12300"),
		AllowedOrigins:    envList("ASSISTANT_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateWindow:        envDuration("ASSISTANT_RATE_WINDOW", time.Minute),
		RateMaxRequests:   envInt("ASSISTANT_RATE_MAX_REQUESTS", 10),
		MinSimilarity:     envFloat("ASSISTANT_MIN_SIMILARITY", 0.30),
		TopK:              envInt("ASSISTANT_SEARCH_TOP_K", 8),
		KeywordLimit:      envInt("ASSISTANT_KEYWORD_LIMIT", 5),
		MaxContextChars:   envInt("ASSISTANT_MAX_CONTEXT_CHARS", 6000),
		CompletionTimeout: envDuration("ASSISTANT_COMPLETION_TIMEOUT", 5*time.Second),
		CompletionModel:   envString("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingModel:    envString("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		WeaviateURL:       strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' "),
		WeaviateClass:     envString("ASSISTANT_WEAVIATE_CLASS", "PortfolioChunk"),
		SupabaseURL:       strings.TrimSuffix(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:   os.Getenv("SUPABASE_ANON_KEY"),
	}
	if cfg.SupabaseURL == "" {
		slog.Warn("SUPABASE_URL not set, conversation logging is disabled")
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("Invalid integer config value, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		slog.Warn("Invalid float config value, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		slog.Warn("Invalid duration config value, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

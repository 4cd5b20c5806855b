// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/davidmh/portfolio-assistant/services/assistant/config"
	"github.com/davidmh/portfolio-assistant/services/assistant/guard"
	"github.com/davidmh/portfolio-assistant/services/assistant/handlers"
	"github.com/davidmh/portfolio-assistant/services/assistant/llm"
	"github.com/davidmh/portfolio-assistant/services/assistant/logsink"
	"github.com/davidmh/portfolio-assistant/services/assistant/observability"
	"github.com/davidmh/portfolio-assistant/services/assistant/ratelimit"
	"github.com/davidmh/portfolio-assistant/services/assistant/routes"
	"github.com/davidmh/portfolio-assistant/services/assistant/store"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "assistant-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	cfg := config.Load()

	// --- Document store ---
	var docStore store.DocumentStore
	weaviateURL := strings.Trim(cfg.WeaviateURL, "\"' ")
	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		parsedURL, err := url.Parse(weaviateURL)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			slog.Warn("WEAVIATE_SERVICE_URL is invalid, retrieval disabled",
				"url", weaviateURL, "error", err)
		} else {
			clientConf := weaviate.Config{
				Host:   parsedURL.Host,
				Scheme: parsedURL.Scheme,
			}
			weaviateClient, err := weaviate.NewClient(clientConf)
			if err != nil {
				slog.Error("Failed to create Weaviate client", "error", err)
			} else {
				store.EnsureSchema(context.Background(), weaviateClient, cfg.WeaviateClass)
				docStore = store.NewWeaviateStore(weaviateClient, cfg.WeaviateClass)
			}
		}
	}
	if docStore == nil {
		log.Fatalf("FATAL: WEAVIATE_SERVICE_URL must point at a reachable document store")
	}

	// --- Prompt guard ---
	guardEngine, err := guard.NewEngine()
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the prompt guard: %v", err)
	}

	// --- Completion client ---
	log.Println("Configuring the completion client")
	completions, err := llm.NewOpenAIClient(cfg.CompletionModel, cfg.EmbeddingModel, cfg.CompletionTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize the completion client: %v", err)
	}

	// --- Conversation log sink ---
	convLogger := logsink.NewSupabaseLogger(cfg.SupabaseURL, cfg.SupabaseAnonKey)

	// --- Rate limiter ---
	limiter := ratelimit.New(cfg.RateWindow, cfg.RateMaxRequests)
	stopJanitor := make(chan struct{})
	go limiter.RunJanitor(cfg.RateWindow, stopJanitor)
	defer close(stopJanitor)

	ask := handlers.NewAskHandler(cfg, limiter, guardEngine, docStore, completions, convLogger)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("Handler panicked", "panic", recovered)
		c.String(http.StatusInternalServerError,
			"The assistant is temporarily unavailable. Please try again later.")
	}))
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, ask, cfg.AllowedOrigins)

	log.Println("Starting the assistant server on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

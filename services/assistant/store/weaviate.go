// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store implements the pipeline's read path against the document
// store. The write path (ingestion) is owned by an offline process; the
// pipeline only searches.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

var tracer = otel.Tracer("assistant.store.weaviate")

// DocumentStore is the read-path contract the orchestrator depends on.
//
// SearchSimilar returns the raw decoded document payload so the retrieval
// guard can validate its shape; SearchKeyword returns typed documents with
// malformed entries already skipped, mirroring the store's keyword REST
// endpoint behavior.
type DocumentStore interface {
	SearchSimilar(ctx context.Context, vector []float32, limit int) (any, error)
	SearchKeyword(ctx context.Context, query string, limit int) ([]datatypes.RetrievedDocument, error)
}

// WeaviateStore implements DocumentStore against a Weaviate class holding
// the ingested knowledge-base chunks.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateStore wraps an existing Weaviate client. The class is the
// knowledge-base class created by ingestion (content, source, priority,
// file_hash properties).
func NewWeaviateStore(client *weaviate.Client, class string) *WeaviateStore {
	return &WeaviateStore{client: client, class: class}
}

// SearchSimilar runs a nearVector query and returns the hits as a generic
// document array: each entry carries id, content, metadata and a
// similarity score mapped from Weaviate's certainty (always in [0, 1]).
//
// Transport and GraphQL-level failures are retrieval errors. A response
// whose shape cannot be normalized is returned raw so the retrieval guard
// reports the contract violation.
func (s *WeaviateStore) SearchSimilar(ctx context.Context, vector []float32, limit int) (any, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.SearchSimilar")
	defer span.End()
	span.SetAttributes(attribute.Int("search.limit", limit))

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "priority"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate vector search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		err := graphQLError(result.Errors)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return normalizeHits(result.Data, s.class), nil
}

// SearchKeyword runs a substring match over chunk content, used as the
// fallback when vector search returns nothing above threshold. Entries
// without usable content are skipped; keyword hits carry no similarity
// score.
func (s *WeaviateStore) SearchKeyword(ctx context.Context, query string, limit int) ([]datatypes.RetrievedDocument, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.SearchKeyword")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"content"}).
		WithOperator(filters.Like).
		WithValueText("*" + query + "*")

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "priority"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate keyword search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		err := graphQLError(result.Errors)
		span.RecordError(err)
		return nil, err
	}

	var docs []datatypes.RetrievedDocument
	hits, _ := normalizeHits(result.Data, s.class).([]any)
	for _, raw := range hits {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content, ok := obj["content"].(string)
		if !ok || content == "" {
			slog.Warn("Keyword fallback hit without usable content, skipping")
			continue
		}
		doc := datatypes.RetrievedDocument{Content: content}
		if id, ok := obj["id"].(string); ok {
			doc.ID = id
		}
		if meta, ok := obj["metadata"].(map[string]any); ok {
			doc.Metadata.Source, _ = meta["source"].(string)
			doc.Metadata.Priority, _ = meta["priority"].(string)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// normalizeHits reshapes Weaviate's Get payload into the generic document
// array the retrieval guard expects: {id, content, metadata, similarity}.
// Anything that does not fit the expected envelope is returned as-is so
// the guard surfaces the contract failure.
func normalizeHits(data map[string]models.JSONObject, class string) any {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return data["Get"]
	}
	hits, ok := get[class].([]any)
	if !ok {
		return get[class]
	}

	normalized := make([]any, 0, len(hits))
	for _, raw := range hits {
		obj, ok := raw.(map[string]any)
		if !ok {
			normalized = append(normalized, raw)
			continue
		}
		doc := map[string]any{
			"metadata": map[string]any{
				"source":   obj["source"],
				"priority": obj["priority"],
			},
		}
		if content, ok := obj["content"]; ok {
			doc["content"] = content
		}
		if additional, ok := obj["_additional"].(map[string]any); ok {
			if id, ok := additional["id"]; ok {
				doc["id"] = id
			}
			if certainty, ok := additional["certainty"]; ok {
				doc["similarity"] = certainty
			}
		}
		normalized = append(normalized, doc)
	}
	return normalized
}

func graphQLError(errs []*models.GraphQLError) error {
	if len(errs) == 0 || errs[0] == nil {
		return fmt.Errorf("weaviate returned an unspecified GraphQL error")
	}
	return fmt.Errorf("weaviate returned a GraphQL error: %s", errs[0].Message)
}

// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

func TestInspectRetrieval_RejectsNonArrayPayloads(t *testing.T) {
	payloads := []any{
		nil,
		"not an array",
		42,
		map[string]any{"content": "a lone object"},
	}

	for _, payload := range payloads {
		result := InspectRetrieval(payload, 0.4)
		assert.False(t, result.Allowed, "payload %v", payload)
		assert.Equal(t, ReasonInvalidFormat, result.Reason)
		assert.Empty(t, result.Docs)
	}
}

func TestInspectRetrieval_FiltersByThreshold(t *testing.T) {
	payload := []any{
		map[string]any{"content": "strong match", "similarity": 0.5},
		map[string]any{"content": "weak match", "similarity": 0.1},
	}

	result := InspectRetrieval(payload, 0.4)

	assert.True(t, result.Allowed)
	assert.Len(t, result.Docs, 1)
	assert.Equal(t, "strong match", result.Docs[0].Content)
}

func TestInspectRetrieval_ThresholdIsInclusive(t *testing.T) {
	payload := []any{
		map[string]any{"content": "exactly at the bar", "similarity": 0.4},
	}

	result := InspectRetrieval(payload, 0.4)

	assert.True(t, result.Allowed)
	assert.Len(t, result.Docs, 1)
}

func TestInspectRetrieval_DropsMalformedEntriesSilently(t *testing.T) {
	payload := []any{
		map[string]any{"content": "good", "similarity": 0.9},
		// missing content, non-string content, non-numeric similarity,
		// non-object, and null entries must all be skipped without error
		map[string]any{"similarity": 0.9},
		map[string]any{"content": 123, "similarity": 0.9},
		map[string]any{"content": "ok", "similarity": "high"},
		"just a string",
		nil,
	}

	result := InspectRetrieval(payload, 0.4)

	assert.True(t, result.Allowed)
	assert.Len(t, result.Docs, 1)
	assert.Equal(t, "good", result.Docs[0].Content)
}

func TestInspectRetrieval_EmptyResultIsStillAllowed(t *testing.T) {
	result := InspectRetrieval([]any{}, 0.4)

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Docs)
	assert.Empty(t, result.Reason)
}

func TestInspectRetrieval_DecodesMetadata(t *testing.T) {
	payload := []any{
		map[string]any{
			"id":         "doc-1",
			"content":    "chunk text",
			"similarity": 0.8,
			"metadata":   map[string]any{"source": "resume.md", "priority": "high"},
		},
	}

	result := InspectRetrieval(payload, 0.4)

	assert.True(t, result.Allowed)
	assert.Len(t, result.Docs, 1)
	doc := result.Docs[0]
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "resume.md", doc.Metadata.Source)
	assert.Equal(t, "high", doc.Metadata.Priority)
}

func TestInspectRetrieval_AcceptsTypedDocuments(t *testing.T) {
	docs := []datatypes.RetrievedDocument{
		{Content: "kept", Similarity: 0.7},
		{Content: "dropped", Similarity: 0.2},
	}

	result := InspectRetrieval(docs, 0.4)

	assert.True(t, result.Allowed)
	assert.Len(t, result.Docs, 1)
	assert.Equal(t, "kept", result.Docs[0].Content)
}

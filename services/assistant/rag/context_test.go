// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

func doc(source, priority, content string) datatypes.RetrievedDocument {
	return datatypes.RetrievedDocument{
		Content: content,
		Metadata: datatypes.DocumentMetadata{
			Source:   source,
			Priority: priority,
		},
	}
}

func TestBuildContext_EmptyInput(t *testing.T) {
	for _, max := range []int{0, 100, 6000} {
		result := BuildContext(nil, max)
		assert.Equal(t, "", result.Context)
		assert.Equal(t, 0, result.TotalChars)
		assert.False(t, result.Truncated)
	}
}

func TestBuildContext_IncludesAllDocumentsWhenTheyFit(t *testing.T) {
	docs := []datatypes.RetrievedDocument{
		doc("resume.md", "high", "Led the platform team."),
		doc("projects.md", "normal", "Built a streaming pipeline."),
	}

	result := BuildContext(docs, 6000)

	assert.False(t, result.Truncated)
	assert.Contains(t, result.Context, "[Source: resume.md]")
	assert.Contains(t, result.Context, "Led the platform team.")
	assert.Contains(t, result.Context, "[Source: projects.md]")
	assert.Contains(t, result.Context, "Built a streaming pipeline.")
	assert.Equal(t, len(result.Context), result.TotalChars)
}

func TestBuildContext_StartsWithTheFixedHeader(t *testing.T) {
	result := BuildContext([]datatypes.RetrievedDocument{
		doc("a.md", "high", "content"),
	}, 6000)

	assert.True(t, strings.HasPrefix(result.Context, contextHeader))
}

func TestBuildContext_OrdersByPriorityTier(t *testing.T) {
	docs := []datatypes.RetrievedDocument{
		doc("low.md", "normal", "normal tier"),
		doc("top.md", "high", "high tier"),
		doc("mid.md", "medium", "medium tier"),
	}

	result := BuildContext(docs, 6000)

	high := strings.Index(result.Context, "high tier")
	medium := strings.Index(result.Context, "medium tier")
	normal := strings.Index(result.Context, "normal tier")
	assert.True(t, high < medium, "high tier must precede medium")
	assert.True(t, medium < normal, "medium tier must precede normal")
}

func TestBuildContext_UnknownPriorityLandsInGeneral(t *testing.T) {
	docs := []datatypes.RetrievedDocument{
		doc("odd.md", "urgent", "mystery tier"),
		doc("none.md", "", "missing tier"),
	}

	result := BuildContext(docs, 6000)

	assert.Contains(t, result.Context, "[GENERAL]")
	assert.Contains(t, result.Context, "mystery tier")
	assert.Contains(t, result.Context, "missing tier")
}

func TestBuildContext_TruncatesAtTheBound(t *testing.T) {
	big := strings.Repeat("x", 7000)
	result := BuildContext([]datatypes.RetrievedDocument{
		doc("big.md", "high", big),
	}, 6000)

	assert.True(t, result.Truncated)
	// The oversized block is dropped whole, never split.
	assert.NotContains(t, result.Context, "xxx")
	assert.LessOrEqual(t, result.TotalChars, 6000)
}

func TestBuildContext_NeverSplitsADocument(t *testing.T) {
	fits := strings.Repeat("a", 100)
	tooBig := strings.Repeat("b", 10000)
	docs := []datatypes.RetrievedDocument{
		doc("first.md", "high", fits),
		doc("second.md", "high", tooBig),
	}

	result := BuildContext(docs, 6000)

	assert.True(t, result.Truncated)
	assert.Contains(t, result.Context, fits)
	assert.NotContains(t, result.Context, "bbb")
}

func TestBuildContext_StopsWalkInsteadOfSkippingAhead(t *testing.T) {
	docs := []datatypes.RetrievedDocument{
		doc("huge.md", "high", strings.Repeat("h", 10000)),
		doc("tiny.md", "normal", "small enough to fit"),
	}

	result := BuildContext(docs, 6000)

	// The walk stops at the first overflowing block; it must not reach
	// past it to a smaller block from a lower tier.
	assert.True(t, result.Truncated)
	assert.NotContains(t, result.Context, "small enough to fit")
}

func TestBuildContext_IsDeterministic(t *testing.T) {
	docs := []datatypes.RetrievedDocument{
		doc("a.md", "high", "alpha"),
		doc("b.md", "medium", "beta"),
		doc("c.md", "normal", "gamma"),
	}

	first := BuildContext(docs, 6000)
	second := BuildContext(docs, 6000)

	assert.Equal(t, first, second)
}

// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rag assembles the grounding context injected into the LLM prompt.
package rag

import (
	"fmt"
	"strings"

	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

// contextHeader is the fixed instruction prepended to every non-empty
// context.
const contextHeader = "Responses should emphasize impact reasoning, architecture decisions and system-level thinking rather than only tool usage"

// priorityTiers is the precedence order for document grouping. Documents
// with a missing or unknown priority land in the general tier.
var priorityTiers = []string{"high", "medium", "normal", "general"}

// ContextBuildResult is the derived output of BuildContext. TotalChars
// always equals len(Context).
type ContextBuildResult struct {
	Context    string
	TotalChars int
	Truncated  bool
}

// BuildContext concatenates validated documents into a single bounded
// context string.
//
// Documents are grouped by priority tier and walked in tier precedence,
// preserving input order within a tier. Each document becomes a labeled
// block; a document is never split. The first block that would push the
// context past maxChars stops the walk entirely and marks the result
// truncated; there is no skipping ahead to a smaller block from a lower
// tier.
//
// An empty document list yields {"", 0, false}: callers treat an empty
// context as "no usable grounding", not as an error. BuildContext is a
// pure function: no I/O, no randomness.
func BuildContext(docs []datatypes.RetrievedDocument, maxChars int) ContextBuildResult {
	if len(docs) == 0 {
		return ContextBuildResult{}
	}

	grouped := make(map[string][]string, len(priorityTiers))
	for _, d := range docs {
		tier := d.Metadata.Priority
		if !knownTier(tier) {
			tier = "general"
		}
		block := fmt.Sprintf("[Source: %s]\n%s", d.Metadata.Source, strings.TrimSpace(d.Content))
		grouped[tier] = append(grouped[tier], block)
	}

	var sb strings.Builder
	sb.WriteString(contextHeader)
	truncated := false

walk:
	for _, tier := range priorityTiers {
		for _, doc := range grouped[tier] {
			block := fmt.Sprintf("\n\n[%s]\n%s", strings.ToUpper(tier), doc)
			if sb.Len()+len(block) > maxChars {
				truncated = true
				break walk
			}
			sb.WriteString(block)
		}
	}

	context := sb.String()
	return ContextBuildResult{
		Context:    context,
		TotalChars: len(context),
		Truncated:  truncated,
	}
}

func knownTier(tier string) bool {
	for _, t := range priorityTiers {
		if t == tier {
			return true
		}
	}
	return false
}

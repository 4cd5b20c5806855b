// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guard

import (
	"github.com/davidmh/portfolio-assistant/services/assistant/datatypes"
)

// ReasonInvalidFormat marks a structural failure: the store handed back
// something that is not an array of documents. This is a contract
// violation, distinct from "no good matches".
const ReasonInvalidFormat = "invalid_format"

// RetrievalResult is the outcome of a retrieval inspection.
//
// Allowed is false only for a structural failure. An empty Docs slice
// with Allowed=true means the matches were too weak; emptiness is a
// downstream concern (the orchestrator's fallback path), not a
// guard-level rejection.
type RetrievalResult struct {
	Allowed bool
	Reason  string
	Docs    []datatypes.RetrievedDocument
}

// InspectRetrieval validates the shape and confidence of a raw document
// payload from the store.
//
// The payload is whatever the store's JSON decoded to: it must be a slice
// to pass the shape check. Entries are kept when their similarity field is
// numeric and at least minSimilarity; malformed entries are dropped
// silently, never treated as errors.
func InspectRetrieval(documents any, minSimilarity float64) RetrievalResult {
	switch docs := documents.(type) {
	case []datatypes.RetrievedDocument:
		kept := make([]datatypes.RetrievedDocument, 0, len(docs))
		for _, d := range docs {
			if d.Similarity >= minSimilarity {
				kept = append(kept, d)
			}
		}
		return RetrievalResult{Allowed: true, Docs: kept}

	case []any:
		kept := make([]datatypes.RetrievedDocument, 0, len(docs))
		for _, raw := range docs {
			doc, ok := decodeDocument(raw)
			if !ok || doc.Similarity < minSimilarity {
				continue
			}
			kept = append(kept, doc)
		}
		return RetrievalResult{Allowed: true, Docs: kept}

	default:
		return RetrievalResult{Allowed: false, Reason: ReasonInvalidFormat}
	}
}

// decodeDocument extracts a RetrievedDocument from a generic JSON object.
// Returns ok=false for anything that is not an object with a string
// content and a numeric similarity.
func decodeDocument(raw any) (datatypes.RetrievedDocument, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return datatypes.RetrievedDocument{}, false
	}

	content, ok := obj["content"].(string)
	if !ok {
		return datatypes.RetrievedDocument{}, false
	}

	similarity, ok := numeric(obj["similarity"])
	if !ok {
		return datatypes.RetrievedDocument{}, false
	}

	doc := datatypes.RetrievedDocument{Content: content, Similarity: similarity}
	if id, ok := obj["id"].(string); ok {
		doc.ID = id
	}
	if meta, ok := obj["metadata"].(map[string]any); ok {
		if source, ok := meta["source"].(string); ok {
			doc.Metadata.Source = source
		}
		if priority, ok := meta["priority"].(string); ok {
			doc.Metadata.Priority = priority
		}
	}
	return doc, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

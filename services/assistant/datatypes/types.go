// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// AskRequest is the JSON body accepted by the /v1/ask endpoint.
type AskRequest struct {
	Question string `json:"question"`
}

// DocumentMetadata carries the source attribution and optional priority
// tier that ingestion attached to a knowledge-base chunk.
type DocumentMetadata struct {
	Source   string `json:"source"`
	Priority string `json:"priority,omitempty"`
}

// RetrievedDocument is the pipeline's transient, read-only view of a
// knowledge-base chunk returned by the document store. Similarity is in
// [0, 1]; higher is a stronger match.
type RetrievedDocument struct {
	ID         string           `json:"id"`
	Content    string           `json:"content"`
	Metadata   DocumentMetadata `json:"metadata"`
	Similarity float64          `json:"similarity"`
}

// ConversationLogEntry is the append-only record written to the log sink
// for every terminal pipeline outcome. The pipeline never reads it back.
//
// Field order matches the abuse_logs schema: ip, question, reason, answer.
type ConversationLogEntry struct {
	IP       string `json:"ip"`
	Question string `json:"question"`
	Reason   string `json:"reason"`
	Answer   string `json:"answer"`
}

// Message is a single chat message sent to the completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Log reasons recorded with conversation entries.
const (
	ReasonSuccess     = "success"
	ReasonFallback    = "fallback"
	ReasonRateLimited = "rate_limited"
	ReasonError       = "error"
)

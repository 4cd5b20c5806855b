// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guard implements the pipeline's security decision functions: the
// prompt guard, which blocks abusive input before any external call runs,
// and the retrieval guard, which enforces a confidence bar on documents
// returned by vector search.
//
// Both guards are pure decision functions with no side effects. The prompt
// guard's pattern sets live in an embedded YAML table (see the enforcement
// subpackage) rather than in code, so extending them is a data change.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/davidmh/portfolio-assistant/services/assistant/guard/enforcement"
)

// maxNormalizedLen is the hard input length bound, in runes, applied to
// the normalized question.
const maxNormalizedLen = 1000

// symbolRunPattern flags a run of 10+ consecutive characters that are
// neither alphanumeric nor whitespace. Evaluated against the normalized
// (already lowercased) form.
var symbolRunPattern = regexp.MustCompile(`[^a-z0-9\s]{10,}`)

// whitespaceRuns collapses internal whitespace during normalization.
var whitespaceRuns = regexp.MustCompile(`\s+`)

// Engine is the prompt guard. Build one at startup with NewEngine; it is
// immutable afterwards and safe for concurrent use.
type Engine struct {
	categories []PatternCategory
}

// NewEngine loads the embedded abuse-pattern table and returns a ready
// guard engine. Fails only if the embedded YAML is malformed, which is a
// build defect.
func NewEngine() (*Engine, error) {
	var file PatternFile
	if err := yaml.Unmarshal(enforcement.AbusePatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded pattern file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pattern file: %w", err)
	}
	file.SortByPriority()
	return &Engine{categories: file.Categories}, nil
}

// Normalize canonicalizes input for pattern matching: lowercase, Unicode
// NFKC, internal whitespace runs collapsed to single spaces, trimmed.
// The original string is never modified; callers keep it for downstream
// use when the input is allowed.
func Normalize(input string) string {
	s := strings.ToLower(input)
	s = norm.NFKC.String(s)
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Inspect runs the guard checks against a raw question and returns the
// verdict. Checks run in a fixed order and the first match wins:
//
//  1. normalized length over the hard bound
//  2. high symbol density (10+ consecutive non-alphanumeric characters)
//  3. category pattern sets, highest priority first
//
// Inspect is deterministic and total: it never fails for any string
// input, including empty and non-ASCII.
func (e *Engine) Inspect(input string) Result {
	normalized := Normalize(input)

	if utf8.RuneCountInString(normalized) > maxNormalizedLen {
		return Result{Allowed: false, Category: CategoryInputTooLarge}
	}

	if symbolRunPattern.MatchString(normalized) {
		return Result{Allowed: false, Category: CategoryHighSymbolDensity}
	}

	for _, cat := range e.categories {
		for _, pattern := range cat.Patterns {
			if strings.Contains(normalized, pattern) {
				return Result{Allowed: false, Category: cat.Name, MatchedPattern: pattern}
			}
		}
	}

	return Result{Allowed: true}
}

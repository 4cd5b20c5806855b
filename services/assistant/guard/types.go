// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guard

import (
	"fmt"
	"sort"
)

// Categories reported by the prompt guard. The first two come from
// structural checks; the rest from the embedded pattern table.
const (
	CategoryInputTooLarge     = "INPUT_TOO_LARGE"
	CategoryHighSymbolDensity = "HIGH_SYMBOL_DENSITY"
	CategoryPromptInjection   = "PROMPT_INJECTION"
	CategoryDataExfiltration  = "DATA_EXFILTRATION"
	CategorySQLInjection      = "SQL_INJECTION"
	CategoryXSS               = "XSS"
	CategoryEncodedPayload    = "ENCODED_PAYLOAD"
)

// Result is the outcome of a prompt inspection. Produced fresh per call,
// never persisted. MatchedPattern is empty for the structural checks.
type Result struct {
	Allowed        bool
	Category       string
	MatchedPattern string
}

// PatternFile is the on-disk (embedded) shape of the abuse-pattern table.
type PatternFile struct {
	Categories []PatternCategory `yaml:"categories"`
}

// PatternCategory groups the substring patterns of one abuse category.
// Higher priority categories are tested first.
type PatternCategory struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Patterns []string `yaml:"patterns"`
}

// Validate rejects empty categories and empty patterns so a bad table
// edit fails at startup rather than silently allowing everything.
func (f *PatternFile) Validate() error {
	if len(f.Categories) == 0 {
		return fmt.Errorf("pattern file contains no categories")
	}
	for _, cat := range f.Categories {
		if cat.Name == "" {
			return fmt.Errorf("pattern category with empty name")
		}
		if len(cat.Patterns) == 0 {
			return fmt.Errorf("pattern category %q has no patterns", cat.Name)
		}
		for _, p := range cat.Patterns {
			if p == "" {
				return fmt.Errorf("pattern category %q contains an empty pattern", cat.Name)
			}
		}
	}
	return nil
}

// SortByPriority orders categories from highest to lowest priority.
func (f *PatternFile) SortByPriority() {
	sort.SliceStable(f.Categories, func(i, j int) bool {
		return f.Categories[i].Priority > f.Categories[j].Priority
	})
}

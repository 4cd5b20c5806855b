// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EnsureSchema creates the knowledge-base class if it does not exist yet.
// Ingestion owns the data; the service only guarantees the class is
// present so a fresh deployment answers (with fallbacks) instead of
// erroring on every search. Failures are logged, not fatal.
func EnsureSchema(ctx context.Context, client *weaviate.Client, class string) {
	exists, err := client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		slog.Warn("Could not check the Weaviate schema", "class", class, "error", err)
		return
	}
	if exists {
		slog.Info("Verified Weaviate schema", "class", class)
		return
	}

	classObj := &models.Class{
		Class:      class,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "priority", DataType: []string{"text"}},
			{Name: "file_hash", DataType: []string{"text"}},
		},
	}
	if err := client.Schema().ClassCreator().WithClass(classObj).Do(ctx); err != nil {
		slog.Warn("Could not create the Weaviate class", "class", class, "error", err)
		return
	}
	slog.Info("Created Weaviate class", "class", class)
}

// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
This file bridges the build system and the runtime guard. It uses the Go
embed package to bake abuse_patterns.yaml directly into the compiled binary,
so the pattern table is immutable at runtime and travels with the executable.
*/

package enforcement

import (
	_ "embed"
)

// AbusePatterns holds the raw byte content of abuse_patterns.yaml.
//
// Populated at compile time via the embed directive. Pass the bytes
// directly to yaml.Unmarshal when building the guard engine.
//
//go:embed abuse_patterns.yaml
var AbusePatterns []byte

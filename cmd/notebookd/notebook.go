// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/codexhq/notebook-engine/internal/config"
	"github.com/codexhq/notebook-engine/internal/engine"
	"github.com/codexhq/notebook-engine/internal/metastore"
)

// notebookID is fixed: every invocation of this binary drives exactly
// one notebook, identified to the embedder by root rather than by a
// numeric id.
const notebookID metastore.NotebookID = 1

// RootFlag is embedded by every subcommand that operates on a single
// notebook directory.
type RootFlag struct {
	Root string `arg:"" help:"Notebook root directory." type:"existingdir"`
}

// key derives the notebook's metrics/log label from its root directory
// name.
func (r RootFlag) key() string {
	return filepath.Base(filepath.Clean(r.Root))
}

// openEngine builds an Engine with default tuning and opens the single
// notebook at r.Root under it. Callers must Close the returned Engine.
func openEngine(r RootFlag) (*engine.Engine, error) {
	e := engine.New(config.Default())
	if err := e.OpenNotebook(notebookID, r.key(), r.Root); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("open notebook: %w", err)
	}
	return e, nil
}

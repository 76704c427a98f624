// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command notebookd is a thin driver over internal/engine: enough of a
// surface to open a notebook, publish events into it, tail its
// broadcaster, print its metrics, and run its maintenance operations
// from a shell, for local testing and operational use.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	_ "github.com/codexhq/notebook-engine/internal/logging"
)

// CLI is the top-level command tree. Each subcommand owns its own
// Engine instance for the duration of the call, scoped to a single
// notebook directory given by --root.
type CLI struct {
	Serve            ServeCmd            `cmd:"" help:"Open a notebook and serve it until interrupted."`
	Publish          PublishCmd          `cmd:"" help:"Publish a single file event into a notebook's queue."`
	Tail             TailCmd             `cmd:"" help:"Open a notebook and print broadcast events as they arrive."`
	Metrics          MetricsCmd          `cmd:"" help:"Print a notebook's current queue/broadcast counts."`
	CleanupOldEvents CleanupOldEventsCmd `cmd:"" help:"Delete terminal events older than a given age."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("notebookd"),
		kong.Description("Drive the notebook file-event engine from the command line."),
	)

	if err := ctx.Run(); err != nil {
		slog.Error("command failed", "command", ctx.Command(), "error", err)
		log.Fatalf("%s: %v", ctx.Command(), err)
	}
	os.Exit(0)
}

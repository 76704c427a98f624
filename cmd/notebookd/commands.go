// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codexhq/notebook-engine/internal/metastore"
	"github.com/codexhq/notebook-engine/internal/metrics"
)

// ServeCmd opens a notebook and keeps its Worker/Watcher/Committer
// running until interrupted, optionally exposing /metrics.
type ServeCmd struct {
	RootFlag
	MetricsListen string `help:"HTTP listen address for Prometheus metrics; empty disables it." default:":8222"`
}

func (c *ServeCmd) Run() error {
	e, err := openEngine(c.RootFlag)
	if err != nil {
		return err
	}
	defer e.Close()

	if c.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(c.MetricsListen, mux); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	fmt.Printf("serving %s (%s), press Ctrl+C to stop\n", c.Root, c.key())
	<-sigs
	fmt.Println("shutting down")
	return nil
}

// PublishCmd inserts a single event into a notebook's queue. The
// notebook is opened, with its services running, just long enough to
// publish (and, with --wait, to await the result), then closed.
type PublishCmd struct {
	RootFlag
	Type        string        `required:"" enum:"created,modified,deleted,moved,renamed,metadata_updated" help:"Event type."`
	Path        string        `required:"" help:"File path, relative to the notebook root."`
	NewPath     string        `help:"Destination path, for moved/renamed events."`
	Wait        bool          `help:"Block until the event reaches a terminal status."`
	WaitTimeout time.Duration `help:"Maximum time to wait with --wait." default:"30s"`
}

var eventTypeByFlag = map[string]metastore.EventType{
	"created":          metastore.EventCreated,
	"modified":         metastore.EventModified,
	"deleted":          metastore.EventDeleted,
	"moved":            metastore.EventMoved,
	"renamed":          metastore.EventRenamed,
	"metadata_updated": metastore.EventMetadataUpdated,
}

func (c *PublishCmd) Run() error {
	e, err := openEngine(c.RootFlag)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.Publish(context.Background(), notebookID, eventTypeByFlag[c.Type], metastore.Payload{
		Path:    c.Path,
		NewPath: c.NewPath,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Printf("published event %d\n", id)

	if !c.Wait {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.WaitTimeout)
	defer cancel()
	ev, err := e.WaitForEvent(ctx, notebookID, id)
	if err != nil {
		return fmt.Errorf("wait for event: %w", err)
	}
	fmt.Printf("event %d reached status %s\n", ev.ID, ev.Status)
	return nil
}

// TailCmd opens a notebook and prints every broadcast event it emits
// until interrupted.
type TailCmd struct {
	RootFlag
}

func (c *TailCmd) Run() error {
	e, err := openEngine(c.RootFlag)
	if err != nil {
		return err
	}
	defer e.Close()

	sub, err := e.Subscribe(notebookID)
	if err != nil {
		return err
	}
	defer e.Unsubscribe(sub)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("tailing %s, press Ctrl+C to stop\n", c.Root)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.NewPath != "" {
				fmt.Printf("%s\t%s\t%s -> %s\t(correlation=%s)\n", ev.Timestamp, ev.EventType, ev.Path, ev.NewPath, ev.CorrelationID)
			} else {
				fmt.Printf("%s\t%s\t%s\t(correlation=%s)\n", ev.Timestamp, ev.EventType, ev.Path, ev.CorrelationID)
			}
		case <-sigs:
			return nil
		}
	}
}

// MetricsCmd prints one notebook's current queue/broadcast counts.
type MetricsCmd struct {
	RootFlag
}

func (c *MetricsCmd) Run() error {
	e, err := openEngine(c.RootFlag)
	if err != nil {
		return err
	}
	defer e.Close()

	counts, err := e.MetricsSnapshot(notebookID)
	if err != nil {
		return err
	}
	fmt.Printf("pending=%d processing=%d completed_24h=%d failed_24h=%d superseded_24h=%d broadcast_dropped=%d\n",
		counts.Pending, counts.Processing, counts.Completed24h, counts.Failed24h, counts.Superseded24h, counts.BroadcastDropped)
	return nil
}

// CleanupOldEventsCmd deletes terminal events older than OlderThan.
type CleanupOldEventsCmd struct {
	RootFlag
	OlderThan time.Duration `help:"Delete terminal events older than this." default:"720h"`
}

func (c *CleanupOldEventsCmd) Run() error {
	e, err := openEngine(c.RootFlag)
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.CleanupOldEvents(notebookID, c.OlderThan)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d events\n", n)
	return nil
}

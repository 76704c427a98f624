// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/codexhq/notebook-engine/internal/broadcast"
	"github.com/codexhq/notebook-engine/internal/committer"
	"github.com/codexhq/notebook-engine/internal/hashutil"
	"github.com/codexhq/notebook-engine/internal/indexer"
	"github.com/codexhq/notebook-engine/internal/lockregistry"
	"github.com/codexhq/notebook-engine/internal/logging"
	"github.com/codexhq/notebook-engine/internal/metastore"
)

// Worker drains a notebook's PENDING events every BatchInterval: a
// periodic Serve(ctx) error loop with a String() for supervisor
// naming, dispatching each event through one table keyed by event
// type.
type Worker struct {
	notebookID    metastore.NotebookID
	notebookKey   string
	root          string
	batchInterval time.Duration

	store     *metastore.Store
	queue     *Queue
	locks     *lockregistry.Registry
	committer *committer.Committer
	hub       *broadcast.Hub

	log *slog.Logger
}

// NewWorker builds a Worker for one notebook.
func NewWorker(notebookID metastore.NotebookID, notebookKey, root string, batchInterval time.Duration, store *metastore.Store, q *Queue, locks *lockregistry.Registry, c *committer.Committer, hub *broadcast.Hub) *Worker {
	return &Worker{
		notebookID:    notebookID,
		notebookKey:   notebookKey,
		root:          root,
		batchInterval: batchInterval,
		store:         store,
		queue:         q,
		locks:         locks,
		committer:     c,
		hub:           hub,
		log:           logging.For("queue"),
	}
}

func (w *Worker) String() string {
	return fmt.Sprintf("queue.Worker(%s)", w.notebookKey)
}

// Serve runs the batch loop until ctx is cancelled, processing one
// final batch before returning (the original's "On shutdown: process
// one final batch, then exit").
func (w *Worker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.processBatch(context.Background())
			return ctx.Err()
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch selects every PENDING event in order, applies each
// independently, stages the resulting filesystem/git effects in one
// batched commit, and broadcasts a notification per successfully
// applied event. Errors in one event never halt the batch.
func (w *Worker) processBatch(ctx context.Context) {
	err := w.locks.WithLock(w.root, func() error {
		events, err := w.store.PendingEvents(w.notebookID)
		if err != nil {
			return fmt.Errorf("list pending events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		w.log.Info("processing batch", "notebook", w.notebookKey, "count", len(events))

		for _, ev := range events {
			w.processOne(ev)
		}
		return nil
	})
	if err != nil {
		w.log.Error("batch processing failed", "notebook", w.notebookKey, "error", err)
	}
}

func (w *Worker) processOne(ev metastore.FileEvent) {
	ok, err := w.store.MarkProcessing(ev.ID)
	if err != nil {
		w.log.Error("mark processing failed", "event", ev.ID, "error", err)
		return
	}
	if !ok {
		// Concurrently superseded between selection and this point;
		// nothing further to do.
		return
	}

	payload, err := ev.DecodePayload()
	if err != nil {
		w.failEvent(ev.ID, err)
		return
	}

	if err := w.applyEvent(ev.EventType, payload); err != nil {
		w.failEvent(ev.ID, err)
		return
	}

	if err := w.store.MarkCompleted(ev.ID); err != nil {
		w.log.Error("mark completed failed", "event", ev.ID, "error", err)
		return
	}
	w.queue.notifyTerminal()

	w.hub.Publish(broadcast.Event{
		NotebookID:    int64(w.notebookID),
		EventID:       int64(ev.ID),
		EventType:     broadcastKind(ev.EventType),
		Path:          payload.Path,
		NewPath:       payload.NewPath,
		CorrelationID: ev.CorrelationID,
		Timestamp:     broadcast.Now(),
	})
}

func (w *Worker) failEvent(id metastore.EventID, applyErr error) {
	if err := w.store.MarkFailed(id, applyErr.Error()); err != nil {
		w.log.Error("mark failed failed", "event", id, "error", err)
	}
	w.queue.notifyTerminal()
	w.log.Warn("event failed", "event", id, "error", applyErr)
}

// applyEvent is the dispatch table the original spread across
// EventQueueWorker._handle_move/_handle_delete/_handle_create/
// _handle_modify plus NotebookFileHandler._update_file_metadata; here
// it's one switch since Go has no circular-import reason to split it.
func (w *Worker) applyEvent(eventType metastore.EventType, payload metastore.Payload) error {
	switch eventType {
	case metastore.EventCreated, metastore.EventModified:
		if err := w.checkIntegrity(payload); err != nil {
			return err
		}
		_, err := indexer.Index(w.store, w.notebookID, w.root, payload.Path)
		if err != nil {
			return err
		}
		w.committer.Mark(w.notebookKey, w.root, payload.Path)
		return nil

	case metastore.EventDeleted:
		if err := indexer.Delete(w.store, w.notebookID, w.root, payload.Path); err != nil {
			return err
		}
		w.committer.MarkDeleted(w.notebookKey, w.root, payload.Path)
		return nil

	case metastore.EventMoved, metastore.EventRenamed:
		if payload.NewPath == "" {
			return fmt.Errorf("move event requires new_path")
		}
		if err := indexer.Move(w.store, w.notebookID, w.root, payload.Path, payload.NewPath); err != nil {
			return err
		}
		w.committer.MarkMoved(w.notebookKey, w.root, payload.Path, payload.NewPath)
		return nil

	case metastore.EventMetadataUpdated:
		if err := indexer.UpdateProperties(w.store, w.notebookID, w.root, payload.Path, payload.PropertiesDelta); err != nil {
			return err
		}
		w.committer.Mark(w.notebookKey, w.root, payload.Path)
		return nil

	default:
		return fmt.Errorf("unknown event type %q", eventType)
	}
}

// broadcastKind maps a durable EventType to the broadcaster's four-kind
// event set, collapsing RENAMED into "moved" and treating a metadata
// update as a "modified" notification.
func broadcastKind(t metastore.EventType) string {
	switch t {
	case metastore.EventCreated:
		return "created"
	case metastore.EventModified, metastore.EventMetadataUpdated:
		return "modified"
	case metastore.EventDeleted:
		return "deleted"
	case metastore.EventMoved, metastore.EventRenamed:
		return "moved"
	default:
		return strings.ToLower(string(t))
	}
}

// checkIntegrity verifies that the payload's declared source_hash, if
// any, still matches the file's on-disk content. A mismatch fails the
// event without touching the filesystem or metadata store.
func (w *Worker) checkIntegrity(payload metastore.Payload) error {
	if payload.SourceHash == "" {
		return nil
	}
	actual, err := hashutil.HashFile(filepath.Join(w.root, payload.Path))
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if actual != payload.SourceHash {
		return fmt.Errorf("integrity check failed: source_hash mismatch for %s", payload.Path)
	}
	return nil
}

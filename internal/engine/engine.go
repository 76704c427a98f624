// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package engine is the composition root: it owns the LockRegistry,
// Committer, root suture.Supervisor, and the registry of open
// notebooks, and is the one package every external caller (cmd/notebookd
// or an embedder) talks to — one struct per open notebook, running
// under a root supervisor.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/codexhq/notebook-engine/internal/broadcast"
	"github.com/codexhq/notebook-engine/internal/committer"
	"github.com/codexhq/notebook-engine/internal/config"
	"github.com/codexhq/notebook-engine/internal/lockregistry"
	"github.com/codexhq/notebook-engine/internal/logging"
	"github.com/codexhq/notebook-engine/internal/metastore"
	"github.com/codexhq/notebook-engine/internal/metrics"
	"github.com/codexhq/notebook-engine/internal/queue"
)

// Engine is the process-wide composition root. The zero value is not
// usable; use New.
type Engine struct {
	tuning    config.Tuning
	locks     *lockregistry.Registry
	committer *committer.Committer
	sup       *suture.Supervisor
	cancel    context.CancelFunc

	mu        sync.Mutex
	notebooks map[metastore.NotebookID]*notebookHandle
}

// New builds an Engine with the given tuning and starts its root
// supervisor in the background. Call Close to stop every open
// notebook and flush pending commits.
func New(tuning config.Tuning) *Engine {
	locks := lockregistry.New()
	e := &Engine{
		tuning:    tuning,
		locks:     locks,
		committer: committer.New(tuning.CommitInterval, tuning.CommitThreshold, locks),
		sup:       suture.New("notebook-engine", suture.Spec{}),
		notebooks: make(map[metastore.NotebookID]*notebookHandle),
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.sup.ServeBackground(ctx)
	return e
}

// OpenNotebook opens (creating on first use) the notebook at root,
// identified to the caller by id/key, and starts its Worker, Watcher,
// and commit-ticker services. Calling OpenNotebook twice for the same
// id is a no-op if the notebook is already open.
func (e *Engine) OpenNotebook(id metastore.NotebookID, key, root string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.notebooks[id]; ok {
		return nil
	}

	h, err := e.buildHandle(id, key, root)
	if err != nil {
		return err
	}
	h.token = e.sup.Add(h.childSup)
	e.notebooks[id] = h

	logging.For("engine").Info("notebook opened", "notebook", key, "root", root)
	return nil
}

// CloseNotebook stops a notebook's services, flushes its pending
// commits, and closes its store. Closing a notebook that isn't open is
// a no-op.
func (e *Engine) CloseNotebook(id metastore.NotebookID) error {
	e.mu.Lock()
	h, ok := e.notebooks[id]
	if ok {
		delete(e.notebooks, id)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	if err := e.sup.RemoveAndWait(h.token, e.tuning.DrainTimeout); err != nil {
		logging.For("engine").Warn("notebook shutdown drain exceeded timeout", "notebook", h.key, "error", err)
	}
	if _, err := e.committer.Commit(h.key); err != nil {
		logging.For("engine").Warn("final commit on close failed", "notebook", h.key, "error", err)
	}
	h.hub.Close()
	metrics.Forget(h.key)
	return h.store.Close()
}

// Close stops every open notebook and the root supervisor.
func (e *Engine) Close() error {
	e.mu.Lock()
	ids := make([]metastore.NotebookID, 0, len(e.notebooks))
	for id := range e.notebooks {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		_ = e.CloseNotebook(id)
	}
	e.cancel()
	return nil
}

func (e *Engine) handle(id metastore.NotebookID) (*notebookHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.notebooks[id]
	if !ok {
		return nil, fmt.Errorf("engine: notebook %d is not open", id)
	}
	return h, nil
}

// Publish inserts a single event for notebook id's queue.
func (e *Engine) Publish(ctx context.Context, id metastore.NotebookID, eventType metastore.EventType, payload metastore.Payload) (metastore.EventID, error) {
	h, err := e.handle(id)
	if err != nil {
		return 0, err
	}
	return h.queue.Publish(ctx, eventType, payload)
}

// PublishBatch inserts every op under one correlation id for notebook id.
func (e *Engine) PublishBatch(ctx context.Context, id metastore.NotebookID, ops []queue.BatchOp) (string, []metastore.EventID, error) {
	h, err := e.handle(id)
	if err != nil {
		return "", nil, err
	}
	return h.queue.PublishBatch(ctx, ops)
}

// SupersedePending marks every PENDING event for path in notebook id
// except CREATED and DELETED ones as SUPERSEDED.
func (e *Engine) SupersedePending(ctx context.Context, id metastore.NotebookID, path string) (int, error) {
	h, err := e.handle(id)
	if err != nil {
		return 0, err
	}
	return h.queue.SupersedePending(ctx, path)
}

// WaitForEvent blocks until eventID reaches a terminal status or ctx
// is done.
func (e *Engine) WaitForEvent(ctx context.Context, id metastore.NotebookID, eventID metastore.EventID) (metastore.FileEvent, error) {
	h, err := e.handle(id)
	if err != nil {
		return metastore.FileEvent{}, err
	}
	return h.queue.WaitForEvent(ctx, eventID)
}

// Subscribe registers a new broadcast subscriber for notebook id.
func (e *Engine) Subscribe(id metastore.NotebookID) (*broadcast.Subscription, error) {
	h, err := e.handle(id)
	if err != nil {
		return nil, err
	}
	return h.hub.Subscribe(), nil
}

// Unsubscribe deregisters a broadcast subscriber.
func (e *Engine) Unsubscribe(sub *broadcast.Subscription) {
	sub.Close()
}

// GetFile returns relPath's FileRecord in notebook id.
func (e *Engine) GetFile(id metastore.NotebookID, relPath string) (metastore.FileRecord, error) {
	h, err := e.handle(id)
	if err != nil {
		return metastore.FileRecord{}, err
	}
	return h.store.GetFile(id, relPath)
}

// ListFiles returns a page of notebook id's FileRecords.
func (e *Engine) ListFiles(id metastore.NotebookID, offset, limit int) ([]metastore.FileRecord, error) {
	h, err := e.handle(id)
	if err != nil {
		return nil, err
	}
	return h.store.ListFiles(id, offset, limit)
}

// Search performs a substring search across notebook id's files.
func (e *Engine) Search(id metastore.NotebookID, query string, limit int) ([]metastore.FileRecord, error) {
	h, err := e.handle(id)
	if err != nil {
		return nil, err
	}
	return h.store.Search(id, query, limit)
}

// CleanupOldEvents deletes terminal events older than olderThan for
// notebook id; PENDING/PROCESSING rows are never touched.
func (e *Engine) CleanupOldEvents(id metastore.NotebookID, olderThan time.Duration) (int, error) {
	h, err := e.handle(id)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan).UnixNano()
	return h.store.CleanupOldEvents(id, cutoff)
}

// MetricsSnapshot computes and records the current Prometheus gauges
// for notebook id, returning the same counts.
func (e *Engine) MetricsSnapshot(id metastore.NotebookID) (metrics.Counts, error) {
	h, err := e.handle(id)
	if err != nil {
		return metrics.Counts{}, err
	}

	since24h := time.Now().Add(-24 * time.Hour).UnixNano()
	ec, err := h.store.EventCounts(id, since24h)
	if err != nil {
		return metrics.Counts{}, err
	}

	c := metrics.Counts{
		Pending:          ec.Pending,
		Processing:       ec.Processing,
		Completed24h:     ec.Completed24h,
		Failed24h:        ec.Failed24h,
		Superseded24h:    ec.Superseded24h,
		BroadcastDropped: h.hub.DroppedCount(),
	}
	metrics.Observe(h.key, c)
	return c, nil
}

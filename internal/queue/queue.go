// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package queue is the publish-side API over the durable event queue
// (internal/metastore's file_events table) plus the Worker service that
// drains it. Publish/PublishBatch/SupersedePending/WaitForEvent are
// safe for concurrent use from arbitrary caller goroutines.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codexhq/notebook-engine/internal/metastore"
)

// BatchOp is one (type, payload) pair within a PublishBatch call.
type BatchOp struct {
	EventType metastore.EventType
	Payload   metastore.Payload
}

// Queue wraps a notebook's metastore.Store for the publish/wait API,
// and owns the per-notebook condition variable WaitForEvent blocks on.
type Queue struct {
	store *metastore.Store

	mu   sync.Mutex
	cond *sync.Cond
}

// New builds a Queue over store.
func New(store *metastore.Store) *Queue {
	q := &Queue{store: store}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Publish inserts a single PENDING event and returns its id. It blocks
// only on the MetadataStore write of one row; it never touches the
// notebook's filesystem root.
func (q *Queue) Publish(ctx context.Context, eventType metastore.EventType, payload metastore.Payload) (metastore.EventID, error) {
	return q.store.EnqueueEvent(q.store.NotebookID(), eventType, payload, "", 0)
}

// PublishBatch inserts every op atomically under one fresh correlation
// id with sequential sequence numbers.
func (q *Queue) PublishBatch(ctx context.Context, ops []BatchOp) (correlationID string, ids []metastore.EventID, err error) {
	correlationID = uuid.NewString()
	storeOps := make([]struct {
		EventType metastore.EventType
		Payload   metastore.Payload
	}, len(ops))
	for i, op := range ops {
		storeOps[i].EventType = op.EventType
		storeOps[i].Payload = op.Payload
	}
	ids, err = q.store.EnqueueBatch(q.store.NotebookID(), correlationID, storeOps)
	return correlationID, ids, err
}

// SupersedePending marks every PENDING event for path except CREATED
// and DELETED ones as SUPERSEDED, preventing a burst of rapid edits
// from piling up redundant work.
func (q *Queue) SupersedePending(ctx context.Context, path string) (int, error) {
	return q.store.SupersedePending(q.store.NotebookID(), path)
}

// notifyTerminal wakes every WaitForEvent waiter; called by the Worker
// after each event reaches a terminal status.
func (q *Queue) notifyTerminal() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// WaitForEvent blocks until id's event reaches a terminal status or ctx
// is done, whichever comes first. Implemented with a sync.Cond
// broadcast on every terminal transition rather than polling: a
// condition variable trivially meets the "observed no later than 1s
// after the transition" contract at zero busy-wait cost.
func (q *Queue) WaitForEvent(ctx context.Context, id metastore.EventID) (metastore.FileEvent, error) {
	done := make(chan struct{})
	defer close(done)

	// sync.Cond has no context-aware Wait, so a goroutine turns ctx
	// cancellation into a Broadcast this waiter will observe.
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	for {
		ev, err := q.store.GetEvent(id)
		if err != nil {
			q.mu.Unlock()
			return metastore.FileEvent{}, fmt.Errorf("queue: wait for event %d: %w", id, err)
		}
		if ev.Status.Terminal() {
			q.mu.Unlock()
			return ev, nil
		}
		if ctx.Err() != nil {
			q.mu.Unlock()
			return ev, ctx.Err()
		}
		q.cond.Wait()
	}
}

// WaitForEventTimeout is a convenience wrapper applying a fixed timeout
// on top of WaitForEvent, for callers that want a bounded wait instead
// of passing their own context.
func (q *Queue) WaitForEventTimeout(id metastore.EventID, timeout time.Duration) (metastore.FileEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return q.WaitForEvent(ctx, id)
}

// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	"github.com/codexhq/notebook-engine/internal/broadcast"
	"github.com/codexhq/notebook-engine/internal/committer"
	"github.com/codexhq/notebook-engine/internal/lockregistry"
	"github.com/codexhq/notebook-engine/internal/metastore"
)

func newTestWorker(t *testing.T) (*Worker, *metastore.Store, *Queue, string) {
	t.Helper()
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	store, err := metastore.Open(filepath.Join(t.TempDir(), "meta.db"), metastore.NotebookID(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := New(store)
	locks := lockregistry.New()
	c := committer.New(time.Hour, 1000, locks)
	hub := broadcast.New(16, 4)
	t.Cleanup(hub.Close)

	w := NewWorker(metastore.NotebookID(1), "nb1", root, time.Hour, store, q, locks, c, hub)
	return w, store, q, root
}

func enqueue(t *testing.T, store *metastore.Store, eventType metastore.EventType, payload metastore.Payload) metastore.EventID {
	t.Helper()
	id, err := store.EnqueueEvent(store.NotebookID(), eventType, payload, "", 0)
	require.NoError(t, err)
	return id
}

func TestProcessBatchIndexesCreatedFile(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello world"), 0o644))
	id := enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "note.md"})

	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusCompleted, ev.Status)

	rec, err := store.GetFile(1, "note.md")
	require.NoError(t, err)
	require.Equal(t, "note.md", rec.Filename)
	require.NotEmpty(t, rec.Hash)
}

func TestProcessBatchDeletesFile(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "note.md"})
	w.processBatch(context.Background())

	id := enqueue(t, store, metastore.EventDeleted, metastore.Payload{Path: "note.md"})
	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusCompleted, ev.Status)

	_, err = store.GetFile(1, "note.md")
	require.ErrorIs(t, err, metastore.ErrNotFound)
	_, statErr := os.Stat(filepath.Join(root, "note.md"))
	require.True(t, os.IsNotExist(statErr))
}

func TestProcessBatchMovesFile(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.md"), []byte("hello"), 0o644))
	enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "old.md"})
	w.processBatch(context.Background())

	id := enqueue(t, store, metastore.EventMoved, metastore.Payload{Path: "old.md", NewPath: "new.md"})
	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusCompleted, ev.Status)

	rec, err := store.GetFile(1, "new.md")
	require.NoError(t, err)
	require.Equal(t, "new.md", rec.Filename)

	n, err := w.committer.Commit("nb1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestProcessBatchFailsEventOnSourceHashMismatch(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	id := enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "note.md", SourceHash: "not-the-real-hash"})

	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusFailed, ev.Status)
	require.Contains(t, ev.ErrorMessage, "source_hash")

	_, err = store.GetFile(1, "note.md")
	require.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestProcessBatchFailsEventOnMissingFile(t *testing.T) {
	w, store, _, _ := newTestWorker(t)
	id := enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "missing.md"})

	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusFailed, ev.Status)
	require.NotEmpty(t, ev.ErrorMessage)
}

func TestProcessBatchUpdatesPropertiesAndRewritesSidecar(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	sidecar := filepath.Join(root, "note.md.json")
	require.NoError(t, os.WriteFile(sidecar, []byte(`{"description":"old"}`), 0o644))
	enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "note.md"})
	w.processBatch(context.Background())

	delta := map[string]any{"description": "new"}
	id := enqueue(t, store, metastore.EventMetadataUpdated, metastore.Payload{Path: "note.md", PropertiesDelta: delta})
	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusCompleted, ev.Status)

	data, err := os.ReadFile(sidecar)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "new", decoded["description"])
}

func TestProcessBatchSkipsEventsSupersededBeforeProcessing(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	id := enqueue(t, store, metastore.EventModified, metastore.Payload{Path: "note.md"})

	n, err := store.SupersedePending(1, "note.md")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	w.processBatch(context.Background())

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusSuperseded, ev.Status)
}

func TestProcessBatchWithNoPendingEventsIsNoop(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	w.processBatch(context.Background())
}

func TestServeProcessesFinalBatchOnShutdown(t *testing.T) {
	w, store, _, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	id := enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "note.md"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Serve(ctx)
	require.ErrorIs(t, err, context.Canceled)

	ev, err := store.GetEvent(id)
	require.NoError(t, err)
	require.Equal(t, metastore.StatusCompleted, ev.Status)
}

func TestProcessOneWakesWaitForEvent(t *testing.T) {
	w, store, q, root := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
	id := enqueue(t, store, metastore.EventCreated, metastore.Payload{Path: "note.md"})

	done := make(chan metastore.FileEvent, 1)
	go func() {
		ev, err := q.WaitForEventTimeout(id, 5*time.Second)
		require.NoError(t, err)
		done <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	w.processBatch(context.Background())

	select {
	case ev := <-done:
		require.Equal(t, metastore.StatusCompleted, ev.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForEvent never woke up")
	}
}

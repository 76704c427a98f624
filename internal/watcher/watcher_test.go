// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watcher

import (
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

func newTestWatcher(t *testing.T) (*Watcher, *metastore.Store, string) {
	t.Helper()
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	store, err := metastore.Open(filepath.Join(t.TempDir(), "meta.db"), metastore.NotebookID(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	locks := lockregistry.New()
	c := committer.New(time.Hour, 1000, locks)
	hub := broadcast.New(16, 4)
	t.Cleanup(hub.Close)

	w := New(metastore.NotebookID(1), "nb1", root, 2*time.Second, store, locks, c, hub)
	return w, store, root
}

func TestInitialScanIndexesNonHiddenFiles(t *testing.T) {
	w, store, root := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden", "b.md"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".dotfile"), []byte("x"), 0o644))

	require.NoError(t, w.InitialScan())

	_, err := store.GetFile(1, "a.md")
	require.NoError(t, err)
	_, err = store.GetFile(1, ".hidden/b.md")
	require.ErrorIs(t, err, metastore.ErrNotFound)
	_, err = store.GetFile(1, ".dotfile")
	require.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestInitialScanSkipsSidecarFiles(t *testing.T) {
	w, store, root := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "img.png"), []byte("binarydata"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img.png.json"), []byte(`{"description":"a pic"}`), 0o644))

	require.NoError(t, w.InitialScan())

	_, err := store.GetFile(1, "img.png")
	require.NoError(t, err)
	_, err = store.GetFile(1, "img.png.json")
	require.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestHandleCreateIndexesNewFile(t *testing.T) {
	w, store, root := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("content"), 0o644))

	w.handleCreate("new.md")

	rec, err := store.GetFile(1, "new.md")
	require.NoError(t, err)
	require.Equal(t, "new.md", rec.Filename)
}

func TestHandleModifyIsNoopWhenHashUnchanged(t *testing.T) {
	w, store, root := newTestWatcher(t)
	full := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
	w.handleCreate("note.md")

	before, err := store.GetFile(1, "note.md")
	require.NoError(t, err)

	w.handleModify("note.md")

	after, err := store.GetFile(1, "note.md")
	require.NoError(t, err)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestHandleModifyReindexesOnContentChange(t *testing.T) {
	w, store, root := newTestWatcher(t)
	full := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
	w.handleCreate("note.md")

	require.NoError(t, os.WriteFile(full, []byte("different content"), 0o644))
	w.handleModify("note.md")

	rec, err := store.GetFile(1, "note.md")
	require.NoError(t, err)
	require.NotEmpty(t, rec.Hash)
}

func TestHandleRemoveQueuesPendingDeleteForTrackedFile(t *testing.T) {
	w, _, root := newTestWatcher(t)
	full := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
	w.handleCreate("note.md")

	require.NoError(t, os.Remove(full))
	w.handleRemove("note.md")

	w.mu.Lock()
	_, ok := w.deletes["note.md"]
	w.mu.Unlock()
	require.True(t, ok)
}

func TestHandleRemoveTreatsStillExistingPathAsModify(t *testing.T) {
	w, store, root := newTestWatcher(t)
	full := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
	w.handleCreate("note.md")
	require.NoError(t, os.WriteFile(full, []byte("replaced via rename dance"), 0o644))

	w.handleRemove("note.md")

	rec, err := store.GetFile(1, "note.md")
	require.NoError(t, err)
	require.NotEmpty(t, rec.Hash)

	w.mu.Lock()
	_, pending := w.deletes["note.md"]
	w.mu.Unlock()
	require.False(t, pending)
}

func TestCreatePairsWithPendingDeleteOfSameHashAsMove(t *testing.T) {
	w, store, root := newTestWatcher(t)
	oldFull := filepath.Join(root, "old.md")
	require.NoError(t, os.WriteFile(oldFull, []byte("same content"), 0o644))
	w.handleCreate("old.md")

	require.NoError(t, os.Remove(oldFull))
	w.handleRemove("old.md")

	newFull := filepath.Join(root, "new.md")
	require.NoError(t, os.WriteFile(newFull, []byte("same content"), 0o644))
	w.handleCreate("new.md")

	_, err := store.GetFile(1, "old.md")
	require.ErrorIs(t, err, metastore.ErrNotFound)
	rec, err := store.GetFile(1, "new.md")
	require.NoError(t, err)
	require.Equal(t, "new.md", rec.Filename)

	w.mu.Lock()
	_, pending := w.deletes["old.md"]
	w.mu.Unlock()
	require.False(t, pending)

	n, err := w.committer.Commit("nb1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCreateWithDifferentHashDoesNotPairAsMove(t *testing.T) {
	w, store, root := newTestWatcher(t)
	oldFull := filepath.Join(root, "old.md")
	require.NoError(t, os.WriteFile(oldFull, []byte("original content"), 0o644))
	w.handleCreate("old.md")
	require.NoError(t, os.Remove(oldFull))
	w.handleRemove("old.md")

	newFull := filepath.Join(root, "new.md")
	require.NoError(t, os.WriteFile(newFull, []byte("unrelated content"), 0o644))
	w.handleCreate("new.md")

	rec, err := store.GetFile(1, "new.md")
	require.NoError(t, err)
	require.Equal(t, "new.md", rec.Filename)

	w.mu.Lock()
	_, pending := w.deletes["old.md"]
	w.mu.Unlock()
	require.True(t, pending)
}

func TestFlushExpiredDeletesAppliesDeleteAfterWindow(t *testing.T) {
	w, store, root := newTestWatcher(t)
	full := filepath.Join(root, "gone.md")
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
	w.handleCreate("gone.md")

	require.NoError(t, os.Remove(full))
	w.handleRemove("gone.md")

	w.mu.Lock()
	pd := w.deletes["gone.md"]
	pd.seenAt = time.Now().Add(-1 * time.Hour)
	w.deletes["gone.md"] = pd
	w.mu.Unlock()

	w.flushExpiredDeletes()

	_, err := store.GetFile(1, "gone.md")
	require.ErrorIs(t, err, metastore.ErrNotFound)

	w.mu.Lock()
	_, pending := w.deletes["gone.md"]
	w.mu.Unlock()
	require.False(t, pending)
}

func TestIsHiddenDetectsAnySegment(t *testing.T) {
	require.True(t, isHidden(".git/config"))
	require.True(t, isHidden("sub/.hidden/file.md"))
	require.False(t, isHidden("sub/dir/file.md"))
}

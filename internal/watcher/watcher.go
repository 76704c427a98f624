// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package watcher observes a notebook root recursively with the
// platform's native file-notification facility (via
// github.com/syncthing/notify) and reconciles FileRecords as changes
// land: create/modify/delete, move detection, hidden-file policy,
// sidecar attachment.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/syncthing/notify"

	"github.com/codexhq/notebook-engine/internal/broadcast"
	"github.com/codexhq/notebook-engine/internal/committer"
	"github.com/codexhq/notebook-engine/internal/hashutil"
	"github.com/codexhq/notebook-engine/internal/indexer"
	"github.com/codexhq/notebook-engine/internal/lockregistry"
	"github.com/codexhq/notebook-engine/internal/logging"
	"github.com/codexhq/notebook-engine/internal/metastore"
)

// pendingDelete is a not-yet-reconciled delete, kept around for
// MoveWindow in case a same-hash create arrives and turns the pair into
// a move.
type pendingDelete struct {
	hash   string
	seenAt time.Time
}

// Watcher is one notebook's recursive filesystem observer. It never
// touches the durable event queue: Worker drains queue-originated
// mutations, Watcher reconciles FileRecords directly under the
// notebook lock, per the package boundary that also keeps
// internal/queue and internal/watcher from importing each other.
type Watcher struct {
	notebookID  metastore.NotebookID
	notebookKey string
	root        string
	moveWindow  time.Duration

	store     *metastore.Store
	locks     *lockregistry.Registry
	committer *committer.Committer
	hub       *broadcast.Hub

	mu      sync.Mutex
	deletes map[string]pendingDelete // relPath -> pending delete awaiting a move pair

	log *slog.Logger
}

// New builds a Watcher for one notebook.
func New(notebookID metastore.NotebookID, notebookKey, root string, moveWindow time.Duration, store *metastore.Store, locks *lockregistry.Registry, c *committer.Committer, hub *broadcast.Hub) *Watcher {
	return &Watcher{
		notebookID:  notebookID,
		notebookKey: notebookKey,
		root:        root,
		moveWindow:  moveWindow,
		store:       store,
		locks:       locks,
		committer:   c,
		hub:         hub,
		deletes:     make(map[string]pendingDelete),
		log:         logging.For("watcher"),
	}
}

func (w *Watcher) String() string {
	return fmt.Sprintf("watcher.Watcher(%s)", w.notebookKey)
}

// Serve runs the initial scan, then watches the notebook root
// recursively until ctx is cancelled.
func (w *Watcher) Serve(ctx context.Context) error {
	if err := w.InitialScan(); err != nil {
		return fmt.Errorf("watcher: initial scan: %w", err)
	}

	events := make(chan notify.EventInfo, 256)
	if err := notify.Watch(filepath.Join(w.root, "..."), events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.root, err)
	}
	defer notify.Stop(events)

	sweep := time.NewTicker(w.moveWindow)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			w.handle(ev)
		case <-sweep.C:
			w.flushExpiredDeletes()
		}
	}
}

// InitialScan enumerates every non-hidden file under root, indexing
// each one. Called synchronously before Serve starts watching so no
// change between a prior shutdown and this start is missed.
func (w *Watcher) InitialScan() error {
	return w.locks.WithLock(w.root, func() error {
		return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(w.root, path)
			if relErr != nil {
				return relErr
			}
			if rel == "." {
				return nil
			}
			if isHidden(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if isSidecarFile(w.root, path) {
				return nil
			}
			if _, err := indexer.Index(w.store, w.notebookID, w.root, rel); err != nil {
				w.log.Error("initial scan index failed", "path", rel, "error", err)
			}
			return nil
		})
	})
}

// isHidden reports whether any path segment starts with a dot.
func isHidden(relPath string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// isSidecarFile reports whether fullPath is itself the sidecar of some
// other file in the same directory, so the initial scan doesn't index
// it as an independent tracked file. It recognises the dot-prefixed
// forms and the non-dotted .json/.xml forms; a non-dotted base.ext.md
// sidecar is not recognised and is indexed as a file of its own.
func isSidecarFile(root, fullPath string) bool {
	base := filepath.Base(fullPath)
	if strings.HasPrefix(base, ".") {
		trimmed := strings.TrimSuffix(base, filepath.Ext(base))
		trimmed = strings.TrimPrefix(trimmed, ".")
		candidate := filepath.Join(filepath.Dir(fullPath), trimmed)
		if fileExists(candidate) {
			return true
		}
	}
	ext := filepath.Ext(base)
	if ext == ".json" || ext == ".xml" {
		withoutExt := strings.TrimSuffix(fullPath, ext)
		if fileExists(withoutExt) && withoutExt != fullPath {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// handle dispatches one raw notify event under the notebook lock.
func (w *Watcher) handle(ev notify.EventInfo) {
	rel, err := filepath.Rel(w.root, ev.Path())
	if err != nil || isHidden(rel) {
		return
	}

	_ = w.locks.WithLock(w.root, func() error {
		switch ev.Event() {
		case notify.Create:
			w.handleCreate(rel)
		case notify.Write:
			w.handleModify(rel)
		case notify.Remove, notify.Rename:
			// notify reports renames as a Remove+Create pair on most
			// backends; Rename is only delivered standalone on some
			// platforms and is treated identically to Remove here,
			// letting move detection reassemble the pair by hash.
			w.handleRemove(rel)
		}
		return nil
	})
}

func (w *Watcher) handleCreate(rel string) {
	fullPath := filepath.Join(w.root, rel)
	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		return
	}
	if isSidecarFile(w.root, fullPath) {
		return
	}

	hash, err := hashutil.HashFile(fullPath)
	if err != nil {
		w.log.Error("hash failed", "path", rel, "error", err)
		return
	}

	if oldPath, ok := w.matchPendingDelete(hash); ok {
		w.applyMove(oldPath, rel)
		return
	}

	rec, err := indexer.Index(w.store, w.notebookID, w.root, rel)
	if err != nil {
		w.log.Error("index failed", "path", rel, "error", err)
		return
	}
	w.committer.Mark(w.notebookKey, w.root, rel)
	w.notify("created", rel, "", rec)
}

func (w *Watcher) handleModify(rel string) {
	fullPath := filepath.Join(w.root, rel)
	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		return
	}
	if isSidecarFile(w.root, fullPath) {
		w.reindexOwner(fullPath)
		return
	}

	hash, err := hashutil.HashFile(fullPath)
	if err != nil {
		w.log.Error("hash failed", "path", rel, "error", err)
		return
	}
	existing, err := w.store.GetFile(w.notebookID, rel)
	if err == nil && existing.Hash == hash {
		return // no-op: content unchanged
	}

	rec, err := indexer.Index(w.store, w.notebookID, w.root, rel)
	if err != nil {
		w.log.Error("index failed", "path", rel, "error", err)
		return
	}
	w.committer.Mark(w.notebookKey, w.root, rel)
	w.notify("modified", rel, "", rec)
}

// reindexOwner re-indexes the file that owns a sidecar which just
// changed, so a hand-edited sidecar's properties reach the FileRecord
// without waiting for the owner file itself to change.
func (w *Watcher) reindexOwner(sidecarFullPath string) {
	owner, ok := ownerOf(sidecarFullPath)
	if !ok {
		return
	}
	rel, err := filepath.Rel(w.root, owner)
	if err != nil {
		return
	}
	rec, err := indexer.Index(w.store, w.notebookID, w.root, rel)
	if err != nil {
		return
	}
	w.committer.Mark(w.notebookKey, w.root, rel)
	w.notify("modified", rel, "", rec)
}

func ownerOf(sidecarFullPath string) (string, bool) {
	dir := filepath.Dir(sidecarFullPath)
	base := filepath.Base(sidecarFullPath)
	ext := filepath.Ext(base)

	if strings.HasPrefix(base, ".") {
		trimmed := strings.TrimSuffix(strings.TrimPrefix(base, "."), ext)
		candidate := filepath.Join(dir, trimmed)
		if fileExists(candidate) {
			return candidate, true
		}
		return "", false
	}
	if ext == ".json" || ext == ".xml" {
		candidate := strings.TrimSuffix(sidecarFullPath, ext)
		if candidate != sidecarFullPath && fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (w *Watcher) handleRemove(rel string) {
	fullPath := filepath.Join(w.root, rel)
	if fileExists(fullPath) {
		// The path still exists: this Remove was the first half of an
		// atomic replace (editors commonly write-then-rename); treat
		// it as a modify instead of a delete.
		w.handleModify(rel)
		return
	}

	rec, err := w.store.GetFile(w.notebookID, rel)
	if err != nil {
		return // never tracked, or already reconciled
	}

	w.mu.Lock()
	w.deletes[rel] = pendingDelete{hash: rec.Hash, seenAt: time.Now()}
	w.mu.Unlock()
}

// matchPendingDelete looks for a pending delete with the same content
// hash, consuming it if found. Pairing only happens within MoveWindow;
// flushExpiredDeletes evicts stale entries.
func (w *Watcher) matchPendingDelete(hash string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for path, pd := range w.deletes {
		if now.Sub(pd.seenAt) > w.moveWindow {
			continue
		}
		if pd.hash == hash {
			delete(w.deletes, path)
			return path, true
		}
	}
	return "", false
}

func (w *Watcher) applyMove(oldRel, newRel string) {
	// The file has already moved on disk; only the record's path changes.
	if err := w.store.RenameFile(w.notebookID, oldRel, newRel); err != nil {
		w.log.Error("move apply failed", "old", oldRel, "new", newRel, "error", err)
		return
	}
	w.committer.MarkMoved(w.notebookKey, w.root, oldRel, newRel)

	rec, err := w.store.GetFile(w.notebookID, newRel)
	if err != nil {
		return
	}
	w.notify("moved", oldRel, newRel, rec)
}

// flushExpiredDeletes applies every pending delete older than
// MoveWindow as a plain delete: no matching create arrived in time.
func (w *Watcher) flushExpiredDeletes() {
	w.mu.Lock()
	now := time.Now()
	expired := make([]string, 0)
	for path, pd := range w.deletes {
		if now.Sub(pd.seenAt) > w.moveWindow {
			expired = append(expired, path)
			delete(w.deletes, path)
		}
	}
	w.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	_ = w.locks.WithLock(w.root, func() error {
		for _, rel := range expired {
			if err := indexer.Delete(w.store, w.notebookID, w.root, rel); err != nil {
				w.log.Error("delete apply failed", "path", rel, "error", err)
				continue
			}
			w.committer.MarkDeleted(w.notebookKey, w.root, rel)
			w.notify("deleted", rel, "", metastore.FileRecord{})
		}
		return nil
	})
}

// notify publishes a change to the broadcaster. For a plain
// create/modify/delete, newPath is empty; for a move, path is the
// source path and newPath the destination, matching the (Path,
// NewPath) convention Worker uses for queue-originated MOVED events.
func (w *Watcher) notify(kind, path, newPath string, rec metastore.FileRecord) {
	w.hub.Publish(broadcast.Event{
		NotebookID: int64(w.notebookID),
		EventID:    rec.ID,
		EventType:  kind,
		Path:       path,
		NewPath:    newPath,
		Timestamp:  broadcast.Now(),
	})
}

// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/thejerf/suture/v4"

	"github.com/codexhq/notebook-engine/internal/broadcast"
	"github.com/codexhq/notebook-engine/internal/committer"
	"github.com/codexhq/notebook-engine/internal/metastore"
	"github.com/codexhq/notebook-engine/internal/queue"
	"github.com/codexhq/notebook-engine/internal/watcher"
)

// controlDirName is the engine-owned subdirectory of every notebook
// root, holding the per-notebook metadata store and kept out of the
// notebook's own git history via .gitignore.
const controlDirName = ".codex"

// notebookHandle is everything the engine tracks for one open
// notebook: its store, publish-side API, fan-out hub, and the child
// supervisor running its Worker/Watcher/commit-ticker services.
type notebookHandle struct {
	id   metastore.NotebookID
	key  string
	root string

	store *metastore.Store
	queue *queue.Queue
	hub   *broadcast.Hub

	childSup *suture.Supervisor
	token    suture.ServiceToken // this handle's child supervisor, as registered on the root supervisor
}

// controlDir returns R/.codex.
func controlDir(root string) string {
	return filepath.Join(root, controlDirName)
}

// ensureWorkingTree initializes a version-control working tree at root
// if one doesn't already exist, staging only .gitignore in the initial
// commit, per the on-disk layout contract.
func ensureWorkingTree(root string) error {
	if _, err := git.PlainOpen(root); err == nil {
		return nil
	} else if err != git.ErrRepositoryNotExists {
		return fmt.Errorf("engine: open repo: %w", err)
	}

	repo, err := git.PlainInit(root, false)
	if err != nil {
		return fmt.Errorf("engine: init repo: %w", err)
	}

	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		content := controlDirName + "/\n"
		if err := os.WriteFile(gitignorePath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("engine: write .gitignore: %w", err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("engine: worktree: %w", err)
	}
	if _, err := wt.Add(".gitignore"); err != nil {
		return fmt.Errorf("engine: stage .gitignore: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("engine: status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	_, err = wt.Commit("Initialize notebook", &git.CommitOptions{Author: &committer.Author})
	if err != nil {
		return fmt.Errorf("engine: initial commit: %w", err)
	}
	return nil
}

// committerTicker is a thin suture.Service wrapping Committer.Tick on
// an interval, one instance per open notebook even though Committer
// itself sweeps every tracked notebook on each tick — each notebook's
// child supervisor holds its own Worker, Watcher, and commit ticker.
type committerTicker struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)
}

func (t *committerTicker) String() string { return fmt.Sprintf("committerTicker(%s)", t.name) }

func (t *committerTicker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (e *Engine) buildHandle(id metastore.NotebookID, key, root string) (*notebookHandle, error) {
	if err := os.MkdirAll(controlDir(root), 0o755); err != nil {
		return nil, fmt.Errorf("engine: mkdir control dir: %w", err)
	}
	if err := ensureWorkingTree(root); err != nil {
		return nil, err
	}

	store, err := metastore.Open(filepath.Join(controlDir(root), "notebook.db"), id)
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	cutoff := time.Now().Add(-e.tuning.StuckAge).UnixNano()
	if _, err := store.SweepStuck(id, cutoff); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("engine: sweep stuck events: %w", err)
	}

	if err := e.committer.Reconcile(key, root); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("engine: reconcile working tree: %w", err)
	}

	q := queue.New(store)
	hub := broadcast.New(e.tuning.BroadcastBuffer, e.tuning.SubscriberBuffer)

	w := queue.NewWorker(id, key, root, e.tuning.BatchInterval, store, q, e.locks, e.committer, hub)
	watch := watcher.New(id, key, root, e.tuning.MoveWindow, store, e.locks, e.committer, hub)
	ticker := &committerTicker{name: key, interval: e.tuning.CommitInterval, tick: e.committer.Tick}

	childSup := suture.New(fmt.Sprintf("notebook(%s)", key), suture.Spec{})
	childSup.Add(w)
	childSup.Add(watch)
	childSup.Add(ticker)

	return &notebookHandle{
		id:       id,
		key:      key,
		root:     root,
		store:    store,
		queue:    q,
		hub:      hub,
		childSup: childSup,
	}, nil
}

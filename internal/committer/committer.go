// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package committer batches filesystem mutations into periodic git
// commits instead of committing on every change. The VCS backend is
// go-git, a pure-Go implementation that needs no cgo or external git
// binary (modernc.org/sqlite plays the same role for the metadata
// store).
package committer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/codexhq/notebook-engine/internal/hashutil"
	"github.com/codexhq/notebook-engine/internal/lockregistry"
	"github.com/codexhq/notebook-engine/internal/logging"
)

// Author is the identity attached to every commit this package makes.
var Author = object.Signature{
	Name:  "notebookd",
	Email: "notebookd@localhost",
}

// pendingSet is one notebook's accumulated, not-yet-committed path set.
type pendingSet struct {
	paths      map[string]struct{}
	moves      map[string]string // newPath -> oldPath, for change-counting only
	lastCommit time.Time
}

// Committer batches repeated path mutations into one commit per
// interval/threshold trigger, one pending set per notebook, grounded 1:1
// in semantics on GitBatcher.add_path/should_commit/commit_all.
type Committer struct {
	interval  time.Duration
	threshold int
	locks     *lockregistry.Registry

	mu      sync.Mutex
	roots   map[string]string // notebookKey -> repo root path
	pending map[string]*pendingSet

	log *slog.Logger
}

// New builds a Committer with the given commit interval and the
// path-count threshold (N_MAX) that forces an immediate commit. locks
// is the same registry the Worker and Watcher use, so a commit never
// runs concurrently with the filesystem/metadata mutations it reads.
func New(interval time.Duration, threshold int, locks *lockregistry.Registry) *Committer {
	return &Committer{
		interval:  interval,
		threshold: threshold,
		locks:     locks,
		roots:     make(map[string]string),
		pending:   make(map[string]*pendingSet),
		log:       logging.For("committer"),
	}
}

func (c *Committer) String() string {
	return fmt.Sprintf("committer.Committer@%p", c)
}

// Mark records that relPath under root has changed (created, modified,
// or renamed-to) and should be staged on the next commit. If the pending
// count for this notebook reaches the threshold, it commits immediately.
func (c *Committer) Mark(notebookKey, root, relPath string) {
	c.add(notebookKey, root, relPath)
}

// MarkDeleted records a deletion the same way Mark does: `git add -A`
// equivalents (go-git's Worktree.Add with a wildcard isn't available,
// so Committer stages deletions explicitly in commit()) handle the
// removal either way.
func (c *Committer) MarkDeleted(notebookKey, root, relPath string) {
	c.add(notebookKey, root, relPath)
}

// MarkMoved records a move as one logical change: oldRelPath staged
// for removal and newRelPath staged for addition, counted as a single
// file for batching and commit-message purposes rather than two.
func (c *Committer) MarkMoved(notebookKey, root, oldRelPath, newRelPath string) {
	var shouldForce bool

	c.mu.Lock()
	c.roots[notebookKey] = root
	set := c.setFor(notebookKey)
	set.paths[oldRelPath] = struct{}{}
	set.paths[newRelPath] = struct{}{}
	set.moves[newRelPath] = oldRelPath
	if len(set.paths) >= c.threshold {
		shouldForce = true
	}
	c.mu.Unlock()

	if shouldForce {
		c.log.Info("forcing commit: pending threshold reached", "notebook", notebookKey, "pending", c.PendingCount(notebookKey))
		if _, err := c.Commit(notebookKey); err != nil {
			c.log.Warn("forced commit failed", "notebook", notebookKey, "error", err)
		}
	}
}

func (c *Committer) add(notebookKey, root, relPath string) {
	var shouldForce bool

	c.mu.Lock()
	c.roots[notebookKey] = root
	set := c.setFor(notebookKey)
	set.paths[relPath] = struct{}{}
	if len(set.paths) >= c.threshold {
		shouldForce = true
	}
	c.mu.Unlock()

	if shouldForce {
		c.log.Info("forcing commit: pending threshold reached", "notebook", notebookKey, "pending", c.PendingCount(notebookKey))
		if _, err := c.Commit(notebookKey); err != nil {
			c.log.Warn("forced commit failed", "notebook", notebookKey, "error", err)
		}
	}
}

// setFor returns notebookKey's pending set, creating it if absent.
// Callers must hold c.mu.
func (c *Committer) setFor(notebookKey string) *pendingSet {
	set, ok := c.pending[notebookKey]
	if !ok {
		set = &pendingSet{paths: make(map[string]struct{}), moves: make(map[string]string)}
		c.pending[notebookKey] = set
	}
	return set
}

// PendingCount reports how many distinct paths are queued for notebookKey.
func (c *Committer) PendingCount(notebookKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.pending[notebookKey]
	if !ok {
		return 0
	}
	return len(set.paths)
}

// Tick evaluates every tracked notebook against the interval trigger and
// commits those whose last commit is older than the configured interval,
// mirroring should_commit/commit across the whole batcher.
func (c *Committer) Tick(ctx context.Context) {
	c.mu.Lock()
	due := make([]string, 0, len(c.pending))
	now := time.Now()
	for key, set := range c.pending {
		if len(set.paths) == 0 {
			continue
		}
		if now.Sub(set.lastCommit) >= c.interval {
			due = append(due, key)
		}
	}
	c.mu.Unlock()

	for _, key := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.Commit(key); err != nil {
			c.log.Warn("periodic commit failed", "notebook", key, "error", err)
		}
	}
}

// CommitAll flushes every notebook with pending changes, used at
// graceful shutdown.
func (c *Committer) CommitAll() int {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	total := 0
	for _, key := range keys {
		n, err := c.Commit(key)
		if err != nil {
			c.log.Warn("shutdown commit failed", "notebook", key, "error", err)
			continue
		}
		total += n
	}
	return total
}

// Commit performs an immediate batch commit for notebookKey regardless
// of interval/threshold state, returning the number of files committed.
func (c *Committer) Commit(notebookKey string) (int, error) {
	c.mu.Lock()
	set, ok := c.pending[notebookKey]
	root := c.roots[notebookKey]
	if ok && len(set.paths) > 0 {
		// Start an empty set that remembers this commit's time, so Tick's
		// interval check measures from the last commit.
		c.pending[notebookKey] = &pendingSet{
			paths:      make(map[string]struct{}),
			moves:      make(map[string]string),
			lastCommit: time.Now(),
		}
	}
	c.mu.Unlock()

	if !ok || len(set.paths) == 0 {
		return 0, nil
	}
	if root == "" {
		return 0, fmt.Errorf("committer: no root recorded for notebook %q", notebookKey)
	}

	var n int
	err := c.locks.WithLock(root, func() error {
		var commitErr error
		n, commitErr = c.doCommit(root, set.paths, set.moves)
		return commitErr
	})
	return n, err
}

func (c *Committer) doCommit(root string, paths map[string]struct{}, moves map[string]string) (int, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			c.log.Warn("not a git repository, skipping commit", "root", root)
			return 0, nil
		}
		return 0, fmt.Errorf("committer: open repo: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return 0, fmt.Errorf("committer: worktree: %w", err)
	}

	var existing, deleted []string
	for relPath := range paths {
		full := filepath.Join(root, relPath)
		if _, statErr := os.Stat(full); statErr == nil {
			if hashutil.IsBinary(full) {
				continue
			}
			existing = append(existing, relPath)
		} else {
			deleted = append(deleted, relPath)
		}
	}

	for _, relPath := range existing {
		if _, err := wt.Add(relPath); err != nil {
			c.log.Warn("error adding file to git", "path", relPath, "error", err)
		}
	}
	for _, relPath := range deleted {
		if _, err := wt.Remove(relPath); err != nil {
			// File might not have been tracked; that's fine.
			c.log.Debug("remove from index skipped", "path", relPath, "error", err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return 0, fmt.Errorf("committer: status: %w", err)
	}
	if status.IsClean() {
		c.log.Debug("no changes to commit", "root", root)
		return 0, nil
	}

	total := len(existing) + len(deleted) - len(moves)
	msg := commitMessage(existing, deleted, moves, total)

	if _, err := wt.Commit(msg, &git.CommitOptions{Author: &Author}); err != nil {
		return 0, fmt.Errorf("committer: commit: %w", err)
	}
	c.log.Info("committed files", "root", root, "count", total, "message", msg)
	return total, nil
}

func commitMessage(existing, deleted []string, moves map[string]string, total int) string {
	if total == 1 {
		for newPath := range moves {
			return "Update " + newPath
		}
		if len(existing) == 1 {
			return "Update " + existing[0]
		}
		return "Delete " + deleted[0]
	}
	return fmt.Sprintf("Batch update: %d files", total)
}

// Reconcile re-derives the pending set for a notebook from the
// worktree's own status against HEAD, used at startup since pending
// state is never persisted (per the in-memory-only PendingCommit
// invariant): after a crash, git status --porcelain already tells us
// exactly what Mark/MarkDeleted would have recorded.
func (c *Committer) Reconcile(notebookKey, root string) error {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil
		}
		return fmt.Errorf("committer: reconcile open: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("committer: reconcile worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("committer: reconcile status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	c.mu.Lock()
	c.roots[notebookKey] = root
	set := c.setFor(notebookKey)
	for relPath := range status {
		set.paths[relPath] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

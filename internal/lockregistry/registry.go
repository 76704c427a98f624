// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package lockregistry is the process-wide map from notebook root path
// to the pair of locks (blocking reentrant, cooperative) that every
// mutation of that notebook's files or metadata rows must hold.
// Entries are created lazily and never evicted during normal
// operation; distinct notebooks never serialize against each other.
package lockregistry

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Registry is the lock bank. The zero value is not usable; use New.
type Registry struct {
	mut     sync.Mutex
	entries map[string]*entry
}

type entry struct {
	blocking *reentrantMutex
	async    *semaphore.Weighted
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) entryFor(path string) *entry {
	canon := canonicalize(path)

	r.mut.Lock()
	defer r.mut.Unlock()

	e, ok := r.entries[canon]
	if !ok {
		e = &entry{
			blocking: newReentrantMutex(),
			async:    semaphore.NewWeighted(1),
		}
		r.entries[canon] = e
	}
	return e
}

func canonicalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Clean(path)
}

// Acquire blocks until the caller holds the reentrant lock for path.
// A goroutine that already holds the lock may call Acquire again
// (e.g. a high-level operation that calls into a primitive which also
// acquires) without deadlocking itself; it must call Release the same
// number of times.
func (r *Registry) Acquire(path string) {
	r.entryFor(path).blocking.Lock()
}

// Release releases one level of the reentrant lock acquired by Acquire.
func (r *Registry) Release(path string) {
	r.entryFor(path).blocking.Unlock()
}

// WithLock runs fn while holding the blocking lock for path, releasing
// it on return including on panic.
func (r *Registry) WithLock(path string, fn func() error) error {
	r.Acquire(path)
	defer r.Release(path)
	return fn()
}

// AcquireAsync takes the cooperative lock for path, honoring ctx
// cancellation. It is not reentrant: a goroutine that already holds
// the async lock for path must not call AcquireAsync again for the
// same path without releasing first.
func (r *Registry) AcquireAsync(ctx context.Context, path string) error {
	return r.entryFor(path).async.Acquire(ctx, 1)
}

// ReleaseAsync releases the cooperative lock for path.
func (r *Registry) ReleaseAsync(path string) {
	r.entryFor(path).async.Release(1)
}

// Clear drops the registry entry for path, or every entry if path is
// empty. Test-only: clearing a path with outstanding waiters leaves
// them blocked on a lock object no longer reachable through the
// registry.
func (r *Registry) Clear(path string) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if path == "" {
		r.entries = make(map[string]*entry)
		return
	}
	delete(r.entries, canonicalize(path))
}

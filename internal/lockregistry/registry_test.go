// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package lockregistry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireIsReentrant(t *testing.T) {
	r := New()
	path := t.TempDir()

	done := make(chan struct{})
	r.Acquire(path)
	go func() {
		// A different goroutine blocks until the lock is fully
		// released, then may itself acquire reentrantly.
		r.Acquire(path)
		r.Acquire(path)
		r.Release(path)
		r.Release(path)
		close(done)
	}()
	// Same-goroutine reentrance: a second Acquire here must not deadlock.
	r.Acquire(path)

	select {
	case <-done:
		t.Fatal("unexpected: concurrent goroutine should block until released")
	case <-time.After(50 * time.Millisecond):
	}

	r.Release(path)
	r.Release(path)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent goroutine should acquire once the lock is fully released")
	}
}

func TestAcquireSerializesDistinctGoroutines(t *testing.T) {
	r := New()
	path := t.TempDir()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	r.Acquire(path)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Acquire(path)
			defer r.Release(path)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, order)
	r.Release(path)
	wg.Wait()
	require.Len(t, order, 3)
}

func TestDistinctNotebooksDoNotSerialize(t *testing.T) {
	r := New()
	a, b := t.TempDir(), t.TempDir()

	r.Acquire(a)
	defer r.Release(a)

	done := make(chan struct{})
	go func() {
		r.Acquire(b)
		defer r.Release(b)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a separate notebook should not block")
	}
}

func TestAcquireAsyncHonorsContext(t *testing.T) {
	r := New()
	path := t.TempDir()

	require.NoError(t, r.AcquireAsync(context.Background(), path))
	defer r.ReleaseAsync(path)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.AcquireAsync(ctx, path)
	require.Error(t, err)
}

func TestClear(t *testing.T) {
	r := New()
	path := t.TempDir()
	r.Acquire(path)
	r.Release(path)
	r.Clear(path)
	r.Clear("")
}

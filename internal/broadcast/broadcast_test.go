// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	h := New(8, 8)
	defer h.Close()

	sub := h.Subscribe()
	defer sub.Close()

	h.Publish(Event{NotebookID: 1, Path: "a.md"})

	select {
	case ev := <-sub.Events():
		require.Equal(t, "a.md", ev.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFanOutReachesEverySubscriber(t *testing.T) {
	h := New(8, 8)
	defer h.Close()

	subA := h.Subscribe()
	subB := h.Subscribe()
	defer subA.Close()
	defer subB.Close()

	h.Publish(Event{Path: "x.md"})

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case ev := <-sub.Events():
			require.Equal(t, "x.md", ev.Path)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscriberEvictedAfterOneFailedSend(t *testing.T) {
	h := New(64, 1)
	defer h.Close()

	sub := h.Subscribe()
	defer sub.Close()

	// Fill the subscriber's one-slot buffer, then force an eviction.
	h.Publish(Event{Path: "1.md"})
	time.Sleep(20 * time.Millisecond) // let the dispatch loop deliver #1
	h.Publish(Event{Path: "2.md"})     // buffer full: should evict
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 0, h.SubscriberCount())

	// The event delivered before eviction is still buffered; after it,
	// the closed channel reports no more values.
	ev, ok := <-sub.Events()
	require.True(t, ok)
	require.Equal(t, "1.md", ev.Path)
	_, ok = <-sub.Events()
	require.False(t, ok, "channel should be closed after eviction")
}

func TestPublishNeverBlocksEvenWhenSourceIsSaturated(t *testing.T) {
	h := New(1, 1)
	defer h.Close()

	// The dispatch loop drains h.in concurrently, so this can't force a
	// deterministic drop, but Publish must never block regardless of
	// how fast the loop keeps up.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Event{Path: "spam.md"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestCloseClosesAllSubscriberChannels(t *testing.T) {
	h := New(8, 8)
	sub := h.Subscribe()

	h.Close()

	_, ok := <-sub.Events()
	require.False(t, ok)
}

func TestSubscriptionCloseRemovesSubscriber(t *testing.T) {
	h := New(8, 8)
	defer h.Close()

	sub := h.Subscribe()
	require.Equal(t, 1, h.SubscriberCount())

	sub.Close()
	require.Equal(t, 0, h.SubscriberCount())
}

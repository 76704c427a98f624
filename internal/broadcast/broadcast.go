// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package broadcast fans out per-notebook change events to subscribers:
// a non-blocking send per subscriber, dropped after one failed attempt,
// fed by a bounded source-side queue that drops the oldest event rather
// than ever blocking a publisher.
package broadcast

import (
	"sync"
	"time"
)

// Event is one change notification handed to every subscriber of a
// notebook's Hub. EventType is one of "created", "modified",
// "deleted", "moved"; NewPath is only set for "moved".
type Event struct {
	NotebookID    int64
	EventID       int64
	EventType     string
	Path          string
	NewPath       string
	CorrelationID string
	Timestamp     string // RFC3339Nano, set by the publisher
}

// Now is the current time formatted the way Event.Timestamp expects,
// a small helper so every publisher stamps events identically.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Hub is one notebook's fan-out point: a bounded source queue feeding a
// background dispatch loop that pushes to every live subscriber.
type Hub struct {
	sourceCap int
	subCap    int

	mu        sync.Mutex
	subs      map[int]*subscriber
	nextID    int
	dropped   int64
	in        chan Event
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

type subscriber struct {
	id     int
	events chan Event
}

// Subscription is a live handle a caller reads Events from and must
// Close when done.
type Subscription struct {
	hub *Hub
	sub *subscriber
}

// New builds a Hub with the given bounded source and per-subscriber
// buffer capacities (BroadcastBuffer/SubscriberBuffer in config.Tuning).
func New(sourceCap, subscriberCap int) *Hub {
	h := &Hub{
		sourceCap: sourceCap,
		subCap:    subscriberCap,
		subs:      make(map[int]*subscriber),
		in:        make(chan Event, sourceCap),
		closeCh:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.dispatchLoop()
	return h
}

// Publish enqueues ev onto the bounded source channel. If the source
// channel is full, the oldest in-flight event is discarded to make
// room for it.
func (h *Hub) Publish(ev Event) {
	select {
	case h.in <- ev:
		return
	default:
	}

	// Source full: drop the oldest queued event, then enqueue ours.
	select {
	case <-h.in:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	default:
	}
	select {
	case h.in <- ev:
	default:
		// Raced with another publisher refilling the channel; give up
		// rather than block the publisher.
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

func (h *Hub) dispatchLoop() {
	defer h.wg.Done()
	for {
		select {
		case ev := <-h.in:
			h.deliver(ev)
		case <-h.closeCh:
			return
		}
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		select {
		case s.events <- ev:
		default:
			// Subscriber's buffer is full: evict it after one failed
			// send rather than let a slow reader back up the hub.
			close(s.events)
			delete(h.subs, id)
		}
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &subscriber{
		id:     h.nextID,
		events: make(chan Event, h.subCap),
	}
	h.nextID++
	h.subs[s.id] = s
	return &Subscription{hub: h, sub: s}
}

// Events returns the channel to read notifications from. It is closed
// when the subscription is evicted or explicitly closed.
func (s *Subscription) Events() <-chan Event {
	return s.sub.events
}

// Close unregisters the subscription, closing its channel if it is
// still registered (a concurrent eviction may have already done so).
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s.sub.id]; ok {
		delete(s.hub.subs, s.sub.id)
		close(s.sub.events)
	}
}

// DroppedCount reports how many source-side events were discarded for
// lack of buffer room.
func (h *Hub) DroppedCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// SubscriberCount reports the number of currently live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops the dispatch loop and closes every live subscriber
// channel, used when a notebook is closed.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closeCh) })
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		close(s.events)
		delete(h.subs, id)
	}
}

// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the engine-wide tunables: commit
// interval/threshold, worker batch interval, move-detection window,
// stuck-event sweep age, and shutdown drain timeout.
package config

import "time"

// Tuning holds every interval and threshold the engine components need.
// Zero-value Tuning is invalid; use Default() and override individual
// fields.
type Tuning struct {
	// CommitInterval is T_COMMIT: seconds since the last commit before
	// the Committer fires on a notebook with a non-empty pending set.
	CommitInterval time.Duration

	// CommitThreshold is N_MAX: pending-path count that forces an
	// immediate commit regardless of CommitInterval.
	CommitThreshold int

	// BatchInterval is T_BATCH: the Worker's wake-up period.
	BatchInterval time.Duration

	// MoveWindow is T_MOVE_WINDOW: the time a Watcher-observed delete
	// stays eligible to be paired with a same-hash create into a move.
	MoveWindow time.Duration

	// StuckAge is T_STUCK: how long a PROCESSING event may sit before
	// the startup sweep resets it to PENDING.
	StuckAge time.Duration

	// DrainTimeout bounds how long graceful shutdown waits for
	// in-flight work before abandoning it to the next startup's sweep.
	DrainTimeout time.Duration

	// BroadcastBuffer is the Broadcaster's bounded source channel
	// capacity per notebook.
	BroadcastBuffer int

	// SubscriberBuffer is the per-subscriber channel capacity.
	SubscriberBuffer int
}

// Default returns the engine's standard tuning: 5s commit/batch
// interval, 100 file commit threshold, 2s move window, 60s stuck age,
// 10s drain timeout, 1000-event broadcast buffer.
func Default() Tuning {
	return Tuning{
		CommitInterval:   5 * time.Second,
		CommitThreshold:  100,
		BatchInterval:    5 * time.Second,
		MoveWindow:       2 * time.Second,
		StuckAge:         60 * time.Second,
		DrainTimeout:     10 * time.Second,
		BroadcastBuffer:  1000,
		SubscriberBuffer: 64,
	}
}

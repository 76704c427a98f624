// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"encoding/json"
	"fmt"
)

// EnqueueEvent inserts a new PENDING FileEvent and returns its id.
func (s *Store) EnqueueEvent(notebookID NotebookID, eventType EventType, payload Payload, correlationID string, sequence int64) (EventID, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, wrap(err)
	}

	res, err := s.db.Exec(`
		INSERT INTO file_events (
			notebook_id, event_type, payload, status, correlation_id,
			sequence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, notebookID, eventType, string(payloadJSON), StatusPending, correlationID, sequence, nowNano())
	if err != nil {
		return 0, wrap(err)
	}
	id, err := res.LastInsertId()
	return EventID(id), wrap(err)
}

// EnqueueBatch inserts every op atomically, all sharing a fresh
// correlation id and strictly increasing sequence numbers.
func (s *Store) EnqueueBatch(notebookID NotebookID, correlationID string, ops []struct {
	EventType EventType
	Payload   Payload
}) ([]EventID, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]EventID, 0, len(ops))
	now := nowNano()
	for i, op := range ops {
		payloadJSON, err := json.Marshal(op.Payload)
		if err != nil {
			return nil, wrap(err)
		}
		res, err := tx.Exec(`
			INSERT INTO file_events (
				notebook_id, event_type, payload, status, correlation_id,
				sequence, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, notebookID, op.EventType, string(payloadJSON), StatusPending, correlationID, int64(i), now)
		if err != nil {
			return nil, wrap(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, wrap(err)
		}
		ids = append(ids, EventID(id))
	}

	return ids, wrap(tx.Commit())
}

// SupersedePending marks every PENDING event for notebookID whose
// payload path or new_path matches path as SUPERSEDED. CREATE and
// DELETE are never superseded by this call (callers must not invoke it
// for those event types, and it additionally refuses to touch them
// defensively).
func (s *Store) SupersedePending(notebookID NotebookID, path string) (int, error) {
	res, err := s.db.Exec(`
		UPDATE file_events
		SET status = ?, processed_at = ?
		WHERE notebook_id = ?
		  AND status = ?
		  AND event_type NOT IN (?, ?)
		  AND (
			json_extract(payload, '$.path') = ? OR
			json_extract(payload, '$.new_path') = ?
		  )
	`, StatusSuperseded, nowNano(), notebookID, StatusPending, EventCreated, EventDeleted, path, path)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	return int(n), wrap(err)
}

// PendingEvents returns every PENDING event for a notebook, ordered
// ascending by (created_at, id) and, within a correlation group, by
// sequence.
func (s *Store) PendingEvents(notebookID NotebookID) ([]FileEvent, error) {
	var events []FileEvent
	err := s.db.Select(&events, `
		SELECT * FROM file_events
		WHERE notebook_id = ? AND status = ?
		ORDER BY created_at, id
	`, notebookID, StatusPending)
	return events, wrap(err)
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(id EventID) (FileEvent, error) {
	var ev FileEvent
	err := s.db.Get(&ev, `SELECT * FROM file_events WHERE id = ?`, id)
	if err != nil {
		return FileEvent{}, wrap(err)
	}
	return ev, nil
}

// MarkProcessing transitions a PENDING event to PROCESSING. Returns
// false if the event was not PENDING (e.g. concurrently superseded).
func (s *Store) MarkProcessing(id EventID) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE file_events SET status = ? WHERE id = ? AND status = ?
	`, StatusProcessing, id, StatusPending)
	if err != nil {
		return false, wrap(err)
	}
	n, err := res.RowsAffected()
	return n > 0, wrap(err)
}

// MarkCompleted transitions an event to COMPLETED.
func (s *Store) MarkCompleted(id EventID) error {
	_, err := s.db.Exec(`
		UPDATE file_events SET status = ?, processed_at = ? WHERE id = ?
	`, StatusCompleted, nowNano(), id)
	return wrap(err)
}

// MarkFailed transitions an event to FAILED, recording errMsg and
// incrementing retry_count.
func (s *Store) MarkFailed(id EventID, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE file_events
		SET status = ?, processed_at = ?, error_message = ?, retry_count = retry_count + 1
		WHERE id = ?
	`, StatusFailed, nowNano(), errMsg, id)
	return wrap(err)
}

// SweepStuck resets every PROCESSING event whose created_at is before
// cutoffNanos back to PENDING with retry_count incremented, for
// the startup sweep that reclaims work abandoned by a crashed worker.
// Returns the number of rows reset.
func (s *Store) SweepStuck(notebookID NotebookID, cutoffNanos int64) (int, error) {
	res, err := s.db.Exec(`
		UPDATE file_events
		SET status = ?, retry_count = retry_count + 1
		WHERE notebook_id = ? AND status = ? AND created_at < ?
	`, StatusPending, notebookID, StatusProcessing, cutoffNanos)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	return int(n), wrap(err)
}

// CleanupOldEvents deletes terminal events older than cutoffNanos,
// never touching PENDING or PROCESSING rows.
func (s *Store) CleanupOldEvents(notebookID NotebookID, cutoffNanos int64) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM file_events
		WHERE notebook_id = ?
		  AND status IN (?, ?, ?)
		  AND created_at < ?
	`, notebookID, StatusCompleted, StatusFailed, StatusSuperseded, cutoffNanos)
	if err != nil {
		return 0, wrap(err)
	}
	n, err := res.RowsAffected()
	return int(n), wrap(err)
}

// EventCounts is the metrics surface's per-status counters for a
// notebook: pending, processing, and 24h completed/failed/superseded
// counts.
type EventCounts struct {
	Pending       int64
	Processing    int64
	Completed24h  int64
	Failed24h     int64
	Superseded24h int64
}

func (s *Store) EventCounts(notebookID NotebookID, since24h int64) (EventCounts, error) {
	var c EventCounts
	row := func(status Status) (int64, error) {
		var n int64
		err := s.db.Get(&n, `SELECT count(*) FROM file_events WHERE notebook_id = ? AND status = ?`, notebookID, status)
		return n, err
	}
	rowSince := func(status Status) (int64, error) {
		var n int64
		err := s.db.Get(&n, `
			SELECT count(*) FROM file_events
			WHERE notebook_id = ? AND status = ? AND processed_at >= ?
		`, notebookID, status, since24h)
		return n, err
	}

	var err error
	if c.Pending, err = row(StatusPending); err != nil {
		return c, wrap(err)
	}
	if c.Processing, err = row(StatusProcessing); err != nil {
		return c, wrap(err)
	}
	if c.Completed24h, err = rowSince(StatusCompleted); err != nil {
		return c, wrap(err)
	}
	if c.Failed24h, err = rowSince(StatusFailed); err != nil {
		return c, wrap(err)
	}
	if c.Superseded24h, err = rowSince(StatusSuperseded); err != nil {
		return c, wrap(err)
	}
	return c, nil
}

// DecodePayload unmarshals a FileEvent's PayloadJSON.
func (e *FileEvent) DecodePayload() (Payload, error) {
	var p Payload
	if e.PayloadJSON == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(e.PayloadJSON), &p); err != nil {
		return p, fmt.Errorf("decodepayload: %w", err)
	}
	return p, nil
}

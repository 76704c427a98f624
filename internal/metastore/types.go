// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metastore is the embedded, single-file relational store kept
// per notebook: file records, tags, the search index, and the durable
// event queue. Every entity here is a plain struct; relations
// (FileRecord↔Tag) are expressed as explicit joins at the query site
// rather than as ORM relationship objects.
package metastore

import "time"

// NotebookID is the opaque notebook identifier the core receives from
// its embedder; the store never interprets it beyond using it as a
// foreign key.
type NotebookID int64

// EventID identifies a single FileEvent row.
type EventID int64

// EventType is the kind of mutation a FileEvent describes.
type EventType string

const (
	EventCreated         EventType = "CREATED"
	EventModified        EventType = "MODIFIED"
	EventDeleted         EventType = "DELETED"
	EventMoved           EventType = "MOVED"
	EventRenamed         EventType = "RENAMED"
	EventMetadataUpdated EventType = "METADATA_UPDATED"
)

// Status is a FileEvent's place in the PENDING→PROCESSING→terminal
// state machine.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusSuperseded Status = "SUPERSEDED"
)

// Terminal reports whether s is one of the event statuses that forbid
// further transitions out.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSuperseded
}

// FileRecord is one tracked file inside a notebook. (notebook_id, path)
// is unique; filename is always basename(path).
type FileRecord struct {
	ID              int64          `db:"id"`
	NotebookID      NotebookID     `db:"notebook_id"`
	Path            string         `db:"path"`
	Filename        string         `db:"filename"`
	ContentType     string         `db:"content_type"`
	Size            int64          `db:"size"`
	Hash            string         `db:"hash"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	FileType        string         `db:"file_type"`
	PropertiesJSON  string         `db:"properties"`
	SidecarPath     string         `db:"sidecar_path"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`
	FileCreatedAt   *int64         `db:"file_created_at"`
	FileModifiedAt  *int64         `db:"file_modified_at"`
	GitTracked      bool           `db:"git_tracked"`
	LastCommitHash  string         `db:"last_commit_hash"`
}

// Properties decodes PropertiesJSON into a generic map. Returns an
// empty, non-nil map if PropertiesJSON is empty or unparsable.
func (f *FileRecord) Properties() map[string]any {
	return decodeProperties(f.PropertiesJSON)
}

// SetProperties encodes props back into PropertiesJSON.
func (f *FileRecord) SetProperties(props map[string]any) {
	f.PropertiesJSON = encodeProperties(props)
}

// Tag is a per-notebook label attachable to any number of files.
type Tag struct {
	ID         int64      `db:"id"`
	NotebookID NotebookID `db:"notebook_id"`
	Name       string     `db:"name"`
	Color      string     `db:"color"`
}

// FileEvent is one row of the durable event queue.
type FileEvent struct {
	ID            EventID    `db:"id"`
	NotebookID    NotebookID `db:"notebook_id"`
	EventType     EventType  `db:"event_type"`
	PayloadJSON   string     `db:"payload"`
	Status        Status     `db:"status"`
	CorrelationID string     `db:"correlation_id"`
	Sequence      int64      `db:"sequence"`
	RetryCount    int64      `db:"retry_count"`
	ErrorMessage  string     `db:"error_message"`
	CreatedAt     int64      `db:"created_at"`
	ProcessedAt   *int64     `db:"processed_at"`
}

// Payload is the typed shape of FileEvent.PayloadJSON: path plus the
// optional fields a MOVED/RENAMED or METADATA_UPDATED event carries.
type Payload struct {
	Path            string         `json:"path"`
	NewPath         string         `json:"new_path,omitempty"`
	SourceHash      string         `json:"source_hash,omitempty"`
	Comment         string         `json:"comment,omitempty"`
	PropertiesDelta map[string]any `json:"properties_delta,omitempty"`
}

// CreatedAtTime is a convenience accessor for FileEvent.CreatedAt.
func (e *FileEvent) CreatedAtTime() time.Time {
	return time.Unix(0, e.CreatedAt)
}

func nowNano() int64 { return time.Now().UnixNano() }

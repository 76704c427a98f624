// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"database/sql"
	"errors"
	"path"
)

// ErrNotFound is returned by point lookups that find nothing.
var ErrNotFound = errors.New("metastore: not found")

// GetFile returns the FileRecord at path, or ErrNotFound.
func (s *Store) GetFile(notebookID NotebookID, relPath string) (FileRecord, error) {
	var rec FileRecord
	err := s.db.Get(&rec, `
		SELECT * FROM files WHERE notebook_id = ? AND path = ?
	`, notebookID, relPath)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	return rec, wrap(err)
}

// ListFiles returns an ordered page of FileRecords for a notebook,
// oldest-id first.
func (s *Store) ListFiles(notebookID NotebookID, offset, limit int) ([]FileRecord, error) {
	var recs []FileRecord
	err := s.db.Select(&recs, `
		SELECT * FROM files
		WHERE notebook_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, notebookID, limit, offset)
	return recs, wrap(err)
}

// UpsertFile inserts rec, or merges it into the existing row for
// (notebook_id, path) by id, enforcing that pair's uniqueness.
// rec.ID is ignored on input and populated on return.
func (s *Store) UpsertFile(rec *FileRecord) error {
	now := nowNano()
	if rec.Filename == "" {
		rec.Filename = path.Base(rec.Path)
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	res, err := s.db.NamedExec(`
		INSERT INTO files (
			notebook_id, path, filename, content_type, size, hash, title,
			description, file_type, properties, sidecar_path, created_at,
			updated_at, file_created_at, file_modified_at, git_tracked,
			last_commit_hash
		) VALUES (
			:notebook_id, :path, :filename, :content_type, :size, :hash, :title,
			:description, :file_type, :properties, :sidecar_path, :created_at,
			:updated_at, :file_created_at, :file_modified_at, :git_tracked,
			:last_commit_hash
		)
		ON CONFLICT(notebook_id, path) DO UPDATE SET
			filename = excluded.filename,
			content_type = excluded.content_type,
			size = excluded.size,
			hash = excluded.hash,
			title = excluded.title,
			description = excluded.description,
			file_type = excluded.file_type,
			properties = excluded.properties,
			sidecar_path = excluded.sidecar_path,
			updated_at = excluded.updated_at,
			file_created_at = excluded.file_created_at,
			file_modified_at = excluded.file_modified_at,
			git_tracked = excluded.git_tracked,
			last_commit_hash = excluded.last_commit_hash
	`, rec)
	if err != nil {
		return wrap(err)
	}

	existing, err := s.GetFile(rec.NotebookID, rec.Path)
	if err != nil {
		return wrap(err)
	}
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	_ = res
	return nil
}

// DeleteFile removes the FileRecord at path along with its tag links
// and search index row (cascaded by foreign keys). Returns ErrNotFound
// if no such record exists.
func (s *Store) DeleteFile(notebookID NotebookID, relPath string) error {
	res, err := s.db.Exec(`
		DELETE FROM files WHERE notebook_id = ? AND path = ?
	`, notebookID, relPath)
	if err != nil {
		return wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameFile moves a FileRecord from oldPath to newPath in place,
// preserving its id and tag links.
func (s *Store) RenameFile(notebookID NotebookID, oldPath, newPath string) error {
	res, err := s.db.Exec(`
		UPDATE files SET path = ?, filename = ?, updated_at = ?
		WHERE notebook_id = ? AND path = ?
	`, newPath, path.Base(newPath), nowNano(), notebookID, oldPath)
	if err != nil {
		return wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertSearchIndex replaces the search text indexed for a file.
func (s *Store) UpsertSearchIndex(notebookID NotebookID, fileID int64, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO search_index (file_id, notebook_id, content)
		VALUES (?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET content = excluded.content
	`, fileID, notebookID, content)
	return wrap(err)
}

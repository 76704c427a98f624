// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Tag CRUD, backing the Tag/FileTag relationship a notebook file can
// carry alongside its properties.
package metastore

// CreateTag inserts a new notebook-scoped tag, or returns the existing
// one if the (notebook_id, name) pair already exists.
func (s *Store) CreateTag(notebookID NotebookID, name, color string) (Tag, error) {
	_, err := s.db.Exec(`
		INSERT INTO tags (notebook_id, name, color) VALUES (?, ?, ?)
		ON CONFLICT(notebook_id, name) DO UPDATE SET color = excluded.color
	`, notebookID, name, color)
	if err != nil {
		return Tag{}, wrap(err)
	}

	var tag Tag
	err = s.db.Get(&tag, `SELECT * FROM tags WHERE notebook_id = ? AND name = ?`, notebookID, name)
	return tag, wrap(err)
}

// ListTags returns every tag defined in a notebook.
func (s *Store) ListTags(notebookID NotebookID) ([]Tag, error) {
	var tags []Tag
	err := s.db.Select(&tags, `SELECT * FROM tags WHERE notebook_id = ? ORDER BY name`, notebookID)
	return tags, wrap(err)
}

// AttachTag links a file to a tag, idempotently.
func (s *Store) AttachTag(fileID, tagID int64) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO file_tags (file_id, tag_id) VALUES (?, ?)
	`, fileID, tagID)
	return wrap(err)
}

// DetachTag removes the link between a file and a tag, if present.
func (s *Store) DetachTag(fileID, tagID int64) error {
	_, err := s.db.Exec(`DELETE FROM file_tags WHERE file_id = ? AND tag_id = ?`, fileID, tagID)
	return wrap(err)
}

// TagsForFile returns every tag attached to a file, via an explicit
// join rather than an ORM relationship.
func (s *Store) TagsForFile(fileID int64) ([]Tag, error) {
	var tags []Tag
	err := s.db.Select(&tags, `
		SELECT t.* FROM tags t
		INNER JOIN file_tags ft ON ft.tag_id = t.id
		WHERE ft.file_id = ?
		ORDER BY t.name
	`, fileID)
	return tags, wrap(err)
}

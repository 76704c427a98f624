// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

// searchPropertyKeys are the properties keys pulled out with
// json_extract to widen a search to a canonicalized key-subset of
// properties, chosen to mirror what a notebook file's frontmatter
// commonly carries.
var searchPropertyKeys = []string{"tags", "summary", "notes"}

// Search performs a substring scan across SearchIndex content,
// FileRecord.title, FileRecord.description, and the canonicalized
// properties key-subset. This is not a query language: a single LIKE
// pattern only.
func (s *Store) Search(notebookID NotebookID, query string, limit int) ([]FileRecord, error) {
	pattern := "%" + query + "%"

	clauses := "si.content LIKE ? ESCAPE '\\' OR f.title LIKE ? ESCAPE '\\' OR f.description LIKE ? ESCAPE '\\'"
	args := []any{notebookID, pattern, pattern, pattern}
	for _, key := range searchPropertyKeys {
		clauses += " OR json_extract(f.properties, '$." + key + "') LIKE ? ESCAPE '\\'"
		args = append(args, pattern)
	}
	args = append(args, limit)

	q := `
		SELECT DISTINCT f.* FROM files f
		LEFT JOIN search_index si ON si.file_id = f.id
		WHERE f.notebook_id = ? AND (` + clauses + `)
		ORDER BY f.id
		LIMIT ?
	`
	var recs []FileRecord
	err := s.db.Select(&recs, q, args...)
	return recs, wrap(err)
}

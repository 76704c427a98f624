// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // register the pure-Go "sqlite" driver
)

const dbDriver = "sqlite"

// commonOptions are the sqlite DSN pragmas this store always needs:
// foreign keys and recursive triggers on (cascading file_tags/
// search_index deletes), and a busy timeout to ride out lock
// contention between the Worker and Watcher.
const commonOptions = "_pragma=foreign_keys(1)&_pragma=recursive_triggers(1)&_pragma=busy_timeout(5000)"

// Store is the embedded relational store for a single notebook.
type Store struct {
	db         *sqlx.DB
	notebookID NotebookID
}

// Open opens (creating if absent) the sqlite database at path and
// brings its schema up to date.
func Open(path string, notebookID NotebookID) (*Store, error) {
	db, err := sqlx.Open(dbDriver, "file:"+path+"?"+commonOptions)
	if err != nil {
		return nil, wrap(err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer, serialize at the handle

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		return nil, wrap(err, "journal_mode")
	}

	s := &Store{db: db, notebookID: notebookID}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, wrap(err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return wrap(s.db.Close())
}

// NotebookID reports the notebook this store was opened for.
func (s *Store) NotebookID() NotebookID { return s.notebookID }

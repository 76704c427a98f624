// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// currentSchemaVersion is the highest migration script's version. On
// open, any script numbered above the store's applied version is run,
// idempotently, in order: embedded scripts, one statement per
// line-only ";" separator, a schemamigrations bookkeeping table.
const currentSchemaVersion = 2

//go:embed sql/*.sql
var embedded embed.FS

// runMigrations applies every embedded script numbered above the
// store's currently-applied schema version, each inside its own
// transaction.
func (s *Store) runMigrations() error {
	applied, err := s.appliedSchemaVersion()
	if err != nil {
		return wrap(err)
	}

	scripts, err := fs.Glob(embedded, "sql/*.sql")
	if err != nil {
		return wrap(err)
	}
	sort.Strings(scripts)

	for _, name := range scripts {
		version, ok := scriptVersion(name)
		if !ok || version <= applied {
			continue
		}
		if err := s.runScript(name); err != nil {
			return wrap(err, name)
		}
	}
	return nil
}

func (s *Store) runScript(name string) error {
	bs, err := fs.ReadFile(embedded, name)
	if err != nil {
		return wrap(err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck

	// SQLite requires one statement per Exec call; scripts split
	// their statements on lines that contain only a semicolon so that
	// statement-internal semicolons (inside string literals) are
	// left alone.
	for _, stmt := range strings.Split(string(bs), "\n;") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return wrap(err, stmt)
		}
	}
	return wrap(tx.Commit())
}

func (s *Store) appliedSchemaVersion() (int, error) {
	var exists int
	err := s.db.Get(&exists, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schemamigrations'`)
	if err != nil {
		return 0, wrap(err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.Get(&version, `SELECT coalesce(max(schema_version), 0) FROM schemamigrations`)
	if err != nil {
		return 0, wrap(err)
	}
	return version, nil
}

// scriptVersion parses the leading "NNNN_" version prefix off a
// migration script filename, e.g. "sql/0002_dedupe_files.sql" -> 2.
func scriptVersion(path string) (int, bool) {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	underscore := strings.IndexByte(base, '_')
	if underscore <= 0 {
		return 0, false
	}
	digits := base[:underscore]
	n := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

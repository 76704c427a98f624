// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codexhq/notebook-engine/internal/hashutil"
	"github.com/codexhq/notebook-engine/internal/metastore"
)

// Index (re)builds the FileRecord for relPath from its on-disk content:
// hash, content-type/binary sniff, image dimensions, and any resolved
// sidecar or markdown-frontmatter properties, then upserts it along
// with its search index row. Returns the updated record.
func Index(store *metastore.Store, notebookID metastore.NotebookID, root, relPath string) (metastore.FileRecord, error) {
	fullPath := filepath.Join(root, relPath)

	hash, err := hashutil.HashFile(fullPath)
	if err != nil {
		return metastore.FileRecord{}, fmt.Errorf("indexer: hash %s: %w", relPath, err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return metastore.FileRecord{}, fmt.Errorf("indexer: stat %s: %w", relPath, err)
	}

	contentType, err := hashutil.ContentType(fullPath)
	if err != nil {
		contentType = ""
	}

	props := map[string]any{}
	var searchText string

	if strings.EqualFold(filepath.Ext(fullPath), ".md") {
		data, err := os.ReadFile(fullPath)
		if err == nil {
			fmProps, body, ferr := ParseFrontmatter(data)
			if ferr == nil {
				props = fmProps
				searchText = string(body)
			} else {
				searchText = string(data)
			}
		}
	}

	if sidecarPath, ok := ResolveSidecar(fullPath); ok {
		sidecarProps, err := ParseSidecar(sidecarPath)
		if err == nil {
			props = metastore.MergeProperties(props, sidecarProps)
		}
	}

	if strings.HasPrefix(contentType, "image/") {
		if w, h, format, ok := hashutil.ImageDimensions(fullPath); ok {
			props = metastore.MergeProperties(props, map[string]any{
				"width":  w,
				"height": h,
				"format": format,
			})
		}
	}

	existing, err := store.GetFile(notebookID, relPath)
	if err != nil && err != metastore.ErrNotFound {
		return metastore.FileRecord{}, err
	}

	rec := existing
	rec.NotebookID = notebookID
	rec.Path = relPath
	rec.Filename = filepath.Base(relPath)
	rec.ContentType = contentType
	rec.Size = info.Size()
	rec.Hash = hash
	rec.FileType = classify(contentType, filepath.Ext(fullPath))
	rec.SetProperties(metastore.MergeProperties(rec.Properties(), props))
	if title, ok := props["title"].(string); ok && title != "" {
		rec.Title = title
	}
	if desc, ok := props["description"].(string); ok && desc != "" {
		rec.Description = desc
	}
	if sidecarPath, ok := ResolveSidecar(fullPath); ok {
		if relSidecar, err := filepath.Rel(root, sidecarPath); err == nil {
			rec.SidecarPath = relSidecar
		}
	} else {
		rec.SidecarPath = ""
	}
	mtimeNanos := info.ModTime().UnixNano()
	rec.FileModifiedAt = &mtimeNanos
	rec.GitTracked = !hashutil.IsBinary(fullPath)

	if err := store.UpsertFile(&rec); err != nil {
		return metastore.FileRecord{}, err
	}
	if err := store.UpsertSearchIndex(notebookID, rec.ID, searchText); err != nil {
		return metastore.FileRecord{}, err
	}
	return rec, nil
}

// classify derives a coarse FileType from MIME type / extension, kept
// as plain metadata for any consumer that wants to group files by
// kind without parsing MIME types itself.
func classify(contentType, ext string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "text/") || ext == ".md" || ext == ".txt":
		return "text"
	case ext == ".json" || ext == ".xml" || ext == ".yaml" || ext == ".yml":
		return "data"
	default:
		return "binary"
	}
}

// Delete removes relPath and its resolved sidecar from disk (if still
// present), and removes its FileRecord (cascading tag links and search
// index rows via foreign keys).
func Delete(store *metastore.Store, notebookID metastore.NotebookID, root, relPath string) error {
	fullPath := filepath.Join(root, relPath)

	if sidecarPath, ok := ResolveSidecar(fullPath); ok {
		_ = os.Remove(sidecarPath)
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("indexer: remove %s: %w", relPath, err)
	}

	if err := store.DeleteFile(notebookID, relPath); err != nil && err != metastore.ErrNotFound {
		return err
	}
	return nil
}

// Move relocates oldPath to newPath on disk (and its sidecar, if any),
// validating that the source exists and the destination does not, then
// updates the FileRecord in place.
func Move(store *metastore.Store, notebookID metastore.NotebookID, root, oldRelPath, newRelPath string) error {
	oldFull := filepath.Join(root, oldRelPath)
	newFull := filepath.Join(root, newRelPath)

	if _, err := os.Stat(oldFull); err != nil {
		return fmt.Errorf("indexer: move source missing: %w", err)
	}
	if _, err := os.Stat(newFull); err == nil {
		return fmt.Errorf("indexer: move destination already exists: %s", newRelPath)
	}

	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		return fmt.Errorf("indexer: mkdir destination: %w", err)
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return fmt.Errorf("indexer: rename: %w", err)
	}

	if oldSidecar, ok := ResolveSidecar(oldFull); ok {
		newSidecar := filepath.Join(filepath.Dir(newFull), filepath.Base(oldSidecar))
		_ = os.Rename(oldSidecar, newSidecar)
	}

	if err := store.RenameFile(notebookID, oldRelPath, newRelPath); err != nil && err != metastore.ErrNotFound {
		return err
	}
	return nil
}

// UpdateProperties merges delta into relPath's FileRecord.Properties and
// re-writes its sidecar if one is the canonical representation.
func UpdateProperties(store *metastore.Store, notebookID metastore.NotebookID, root, relPath string, delta map[string]any) error {
	rec, err := store.GetFile(notebookID, relPath)
	if err != nil {
		return err
	}

	merged := metastore.MergeProperties(rec.Properties(), delta)
	rec.SetProperties(merged)
	if err := store.UpsertFile(&rec); err != nil {
		return err
	}

	fullPath := filepath.Join(root, relPath)
	if _, ok := ResolveSidecar(fullPath); ok {
		return WriteSidecar(fullPath, merged)
	}
	return nil
}

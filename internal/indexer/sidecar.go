// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package indexer builds and refreshes FileRecords from on-disk state:
// hashing, content-type/binary detection, image dimension probing, and
// sidecar metadata resolution. Both the Worker (internal/queue) and the
// Watcher (internal/watcher) route through it so a file reconciled via
// an explicit publish and one reconciled via the filesystem watch end
// up with identical FileRecord content, grounded on the original
// source's shared NotebookFileHandler._update_file_metadata path
// (queue_worker.py's _handle_create/_handle_modify both delegate to it).
package indexer

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
)

// sidecarExts is the sidecar resolution order: JSON, then XML, then
// markdown.
var sidecarExts = []string{".json", ".xml", ".md"}

// ResolveSidecar returns the sidecar file path for fullPath, if any.
// It checks every non-dotted form (`base.ext.json`, `base.ext.xml`,
// `base.ext.md`) before any dot-prefixed form (`.base.ext.json`, ...),
// so a non-dotted sidecar in a later-checked extension still outranks
// a dotted one in an earlier-checked extension.
func ResolveSidecar(fullPath string) (string, bool) {
	dir := filepath.Dir(fullPath)
	base := filepath.Base(fullPath)

	for _, ext := range sidecarExts {
		if candidate := fullPath + ext; fileExists(candidate) {
			return candidate, true
		}
	}
	for _, ext := range sidecarExts {
		if dotted := filepath.Join(dir, "."+base+ext); fileExists(dotted) {
			return dotted, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ParseSidecar reads and decodes a sidecar file's properties, dispatched
// by its extension: JSON via encoding/json, XML via encoding/xml walked
// into a map exactly as the original's _xml_to_dict does, and markdown
// frontmatter via adrg/frontmatter (the closest Go analogue of the
// Python `frontmatter` package the original imports).
func ParseSidecar(sidecarPath string) (map[string]any, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(sidecarPath)) {
	case ".json":
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse json sidecar: %w", err)
		}
		return m, nil
	case ".xml":
		var root xmlNode
		if err := xml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parse xml sidecar: %w", err)
		}
		return xmlNodeToMap(root), nil
	case ".md":
		props, _, err := ParseFrontmatter(data)
		if err != nil {
			return nil, fmt.Errorf("parse markdown sidecar: %w", err)
		}
		return props, nil
	default:
		return nil, fmt.Errorf("unsupported sidecar extension %q", filepath.Ext(sidecarPath))
	}
}

// ParseFrontmatter splits content into its frontmatter properties map
// and body, for markdown files whose own frontmatter block (not a
// sidecar) carries properties.
func ParseFrontmatter(content []byte) (map[string]any, []byte, error) {
	var props map[string]any
	rest, err := frontmatter.Parse(strings.NewReader(string(content)), &props)
	if err != nil {
		// Not every markdown file has a frontmatter block; that's not
		// an error condition, just no properties to merge.
		return map[string]any{}, content, nil
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, rest, nil
}

// xmlNode is a generic XML element used to decode arbitrary sidecar
// schemas into a map, mirroring _xml_to_dict's attribute+children+text
// handling.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func xmlNodeToMap(n xmlNode) map[string]any {
	result := make(map[string]any)
	for _, a := range n.Attrs {
		result[a.Name.Local] = a.Value
	}
	for _, child := range n.Children {
		childData := xmlNodeToMap(child)
		var value any = childData
		if text, ok := childData["_text"]; ok && len(childData) == 1 {
			value = text
		}
		if existing, ok := result[child.XMLName.Local]; ok {
			if list, ok := existing.([]any); ok {
				result[child.XMLName.Local] = append(list, value)
			} else {
				result[child.XMLName.Local] = []any{existing, value}
			}
		} else {
			result[child.XMLName.Local] = value
		}
	}
	if text := strings.TrimSpace(n.Text); text != "" {
		if len(result) == 0 {
			// Caller substitutes this as the bare scalar value; returning
			// it under "_text" keeps the map shape uniform here.
			result["_text"] = text
		} else {
			result["_text"] = text
		}
	}
	return result
}

// WriteSidecar persists props to fullPath's resolved sidecar, or a new
// dot-prefixed JSON sidecar if none exists yet — the original's
// write_sidecar default-to-JSON behavior.
func WriteSidecar(fullPath string, props map[string]any) error {
	sidecarPath, ok := ResolveSidecar(fullPath)
	if !ok {
		dir := filepath.Dir(fullPath)
		sidecarPath = filepath.Join(dir, "."+filepath.Base(fullPath)+".json")
	}

	switch strings.ToLower(filepath.Ext(sidecarPath)) {
	case ".md":
		return writeMarkdownSidecar(sidecarPath, props)
	default:
		return writeJSONSidecar(sidecarPath, props)
	}
}

func writeJSONSidecar(path string, props map[string]any) error {
	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeMarkdownSidecar(path string, props map[string]any) error {
	var sb strings.Builder
	sb.WriteString("---\n")
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	for k, v := range decoded {
		fmt.Fprintf(&sb, "%s: %v\n", k, v)
	}
	sb.WriteString("---\n")
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

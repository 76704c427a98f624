// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package hashutil provides the content hashing and file-type sniffing
// used by the Watcher and Worker: SHA-256 content hash, binary
// detection, MIME guessing, and image dimension probing.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// sniffSize is the number of leading bytes inspected for binary
// detection. MIME guessing reads only the first 512 bytes.
const sniffSize = 8192

// HashFile returns the lowercase hex-encoded SHA-256 digest of the
// file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes is the in-memory equivalent of HashFile, for content that
// has already been read (e.g. while writing a new file).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsBinary reports whether the file's first 8 KiB contain a NUL byte.
// A file that can't be read is conservatively treated as binary so
// it's never fed to the search indexer or staged incorrectly.
func IsBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return true
	}
	return containsNUL(buf[:n])
}

func containsNUL(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}

// extContentTypes overrides http.DetectContentType's generic sniff
// result for extensions it can't tell apart from plain text.
var extContentTypes = map[string]string{
	".md":  "text/markdown; charset=utf-8",
	".txt": "text/plain; charset=utf-8",
}

// ContentType guesses a MIME type from the file's leading bytes,
// falling back to a text/markdown or text/plain guess by extension
// when the generic sniff is inconclusive.
func ContentType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	sniffed := http.DetectContentType(buf[:n])
	if !isGenericText(sniffed) {
		return sniffed, nil
	}
	if override, ok := extContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return override, nil
	}
	return sniffed, nil
}

// isGenericText reports whether sniffed is one of http.DetectContentType's
// uninformative fallbacks, the only cases an extension guess should override.
func isGenericText(sniffed string) bool {
	return sniffed == "text/plain; charset=utf-8" || sniffed == "application/octet-stream"
}

// ImageDimensions probes width/height/format for image files without
// decoding the full image. ok is false for non-image or undecodable
// content.
func ImageDimensions(path string) (width, height int, format string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", false
	}
	defer f.Close()

	cfg, fmtName, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, "", false
	}
	return cfg.Width, cfg.Height, fmtName, true
}

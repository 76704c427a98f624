// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package hashutil

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFileMatchesHashBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	content := []byte("# hello\n\nworld\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, HashBytes(content), got)
}

func TestIsBinaryDetectsNUL(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "text.md")
	require.NoError(t, os.WriteFile(textPath, []byte("just text"), 0o644))
	require.False(t, IsBinary(textPath))

	binPath := filepath.Join(dir, "bin.dat")
	require.NoError(t, os.WriteFile(binPath, []byte{0x01, 0x00, 0x02}, 0o644))
	require.True(t, IsBinary(binPath))
}

func TestIsBinaryMissingFile(t *testing.T) {
	require.True(t, IsBinary("/does/not/exist"))
}

func TestImageDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")

	img := image.NewRGBA(image.Rect(0, 0, 10, 20))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	w, h, format, ok := ImageDimensions(path)
	require.True(t, ok)
	require.Equal(t, 10, w)
	require.Equal(t, 20, h)
	require.Equal(t, "png", format)
}

func TestImageDimensionsNonImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, _, _, ok := ImageDimensions(path)
	require.False(t, ok)
}

func TestContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	ct, err := ContentType(path)
	require.NoError(t, err)
	require.Contains(t, ct, "text/plain")
}

func TestContentTypeMarkdownOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello\n\nworld\n"), 0o644))

	ct, err := ContentType(path)
	require.NoError(t, err)
	require.Equal(t, "text/markdown; charset=utf-8", ct)
}

func TestContentTypeDoesNotOverrideASniffedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>not markdown</body></html>"), 0o644))

	ct, err := ContentType(path)
	require.NoError(t, err)
	require.Contains(t, ct, "text/html")
}

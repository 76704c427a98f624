// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package logging wires up log/slog for every engine component, with a
// per-package level override mirroring the old STTRACE convention:
// NOTEBOOKD_TRACE="queue,watcher:INFO" turns on debug logging for the
// queue package and info-level (silencing debug) for watcher.
package logging

import (
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
)

var (
	levels = &levelTracker{levels: make(map[string]slog.Level)}
	out    io.Writer = os.Stderr
)

func init() {
	if os.Getenv("NOTEBOOKD_LOG_DISCARD") != "" {
		out = io.Discard
	}
	slog.SetDefault(For("engine"))
	SetOverrides(os.Getenv("NOTEBOOKD_TRACE"))
}

// componentLevel adapts a component's tracked level to slog.Leveler,
// re-read on every log call so SetLevel/SetOverrides take effect
// immediately on already-constructed loggers.
type componentLevel string

func (c componentLevel) Level() slog.Level { return levels.Get(string(c)) }

// For returns a logger scoped to a given component name, e.g.
// logging.For("queue"). Per-component level overrides set via
// SetOverrides or SetLevel apply to loggers obtained this way.
func For(component string) *slog.Logger {
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: componentLevel(component)})
	return slog.New(h).With(slog.String("component", component))
}

// SetLevel pins a single component to a specific level.
func SetLevel(component string, level slog.Level) {
	levels.Set(component, level)
}

// SetDefaultLevel changes the level used for components with no
// explicit override. Defaults to slog.LevelInfo.
func SetDefaultLevel(level slog.Level) {
	levels.SetDefault(level)
}

// SetOverrides parses a comma-separated "component[:LEVEL]" list, the
// same shape as the legacy STTRACE variable this is modeled on.
func SetOverrides(spec string) {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		level := slog.LevelDebug
		name := part
		if cut, levelStr, ok := strings.Cut(part, ":"); ok {
			name = cut
			if err := level.UnmarshalText([]byte(levelStr)); err != nil {
				continue
			}
		}
		levels.Set(name, level)
	}
}

type levelTracker struct {
	mut      sync.Mutex
	levels   map[string]slog.Level
	fallback slog.Level
}

func (t *levelTracker) Set(component string, level slog.Level) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.levels[component] = level
}

func (t *levelTracker) SetDefault(level slog.Level) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.fallback = level
}

func (t *levelTracker) Default() slog.Level {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.fallback
}

func (t *levelTracker) Get(component string) slog.Level {
	t.mut.Lock()
	defer t.mut.Unlock()
	if lvl, ok := t.levels[component]; ok {
		return lvl
	}
	return t.fallback
}

func (t *levelTracker) Snapshot() map[string]slog.Level {
	t.mut.Lock()
	defer t.mut.Unlock()
	return maps.Clone(t.levels)
}

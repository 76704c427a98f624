// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package lockregistry

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// reentrantMutex is a goroutine-reentrant lock: the goroutine that
// holds it may acquire it again without blocking, and must release it
// the same number of times. Go's sync.Mutex is deliberately not
// reentrant, and none of the example repos carry a reentrant lock
// primitive, so this is hand-rolled using the same goroutine-id trick
// used by most third-party Go "recursive mutex" packages: the runtime
// doesn't expose a goroutine ID API, so we parse it out of a stack
// trace. This is only ever on the lock/unlock slow path, never on a
// hot loop, so the cost is acceptable.
type reentrantMutex struct {
	mut   sync.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

func newReentrantMutex() *reentrantMutex {
	m := &reentrantMutex{owner: -1}
	m.cond = sync.NewCond(&m.mut)
	return m
}

func (m *reentrantMutex) Lock() {
	id := goroutineID()

	m.mut.Lock()
	defer m.mut.Unlock()

	for m.owner != -1 && m.owner != id {
		m.cond.Wait()
	}
	m.owner = id
	m.depth++
}

func (m *reentrantMutex) Unlock() {
	id := goroutineID()

	m.mut.Lock()
	defer m.mut.Unlock()

	if m.owner != id {
		panic("lockregistry: Unlock called by goroutine that does not hold the lock")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = -1
		m.cond.Signal()
	}
}

// goroutineID extracts the calling goroutine's ID from its own stack
// trace header ("goroutine 123 [running]:").
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		panic("lockregistry: could not parse goroutine id: " + err.Error())
	}
	return id
}

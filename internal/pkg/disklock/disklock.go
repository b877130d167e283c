// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package disklock provides the single exclusive lock serializing every
// operation which touches the disk. The command handlers, the update
// pipeline and the layout re-apply path all share one handle; no two
// disk-touching sequences ever run concurrently.
package disklock

import "sync"

// Lock is the exclusive disk lock. It is not reentrant.
type Lock struct {
	mu sync.Mutex
}

// New returns a fresh lock handle to be threaded through constructors.
func New() *Lock {
	return &Lock{}
}

// Lock acquires the lock, blocking until the current holder releases it.
func (l *Lock) Lock() {
	l.mu.Lock()
}

// Unlock releases the lock.
func (l *Lock) Unlock() {
	l.mu.Unlock()
}

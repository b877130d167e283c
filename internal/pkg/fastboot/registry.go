// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fastboot

import (
	"sort"
	"sync"
)

// Registry is a prefix-dispatch table for commands and a store for
// published protocol variables. It implements Registrar; a transport
// feeds received command lines into Dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	vars     map[string]string
}

// NewRegistry builds an empty dispatch table.
func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]HandlerFunc{},
		vars:     map[string]string{},
	}
}

// Register installs a handler for commands starting with prefix.
func (r *Registry) Register(prefix string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[prefix] = handler
}

// Publish stores a protocol variable.
func (r *Registry) Publish(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vars[name] = value
}

// Var returns a published protocol variable.
func (r *Registry) Var(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.vars[name]

	return value, ok
}

// Dispatch routes a received command line to the handler with the
// longest matching registered prefix, passing the remainder of the
// line as the argument. Unknown commands fail the response.
func (r *Registry) Dispatch(resp Responder, command string, data []byte) {
	r.mu.RLock()

	prefixes := make([]string, 0, len(r.handlers))
	for prefix := range r.handlers {
		prefixes = append(prefixes, prefix)
	}

	r.mu.RUnlock()

	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, prefix := range prefixes {
		if len(command) >= len(prefix) && command[:len(prefix)] == prefix {
			r.mu.RLock()
			handler := r.handlers[prefix]
			r.mu.RUnlock()

			handler(resp, command[len(prefix):], data)

			return
		}
	}

	resp.Fail("unknown command")
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fastboot defines the contract between the wire-level command
// transport and the command handlers. The transport itself (USB
// framing, payload download) lives outside this engine.
package fastboot

// Responder reports exactly one terminal status for a command back to
// the transport.
type Responder interface {
	// Okay reports success with an optional message.
	Okay(msg string)

	// Fail reports failure with a short reason string.
	Fail(reason string)
}

// HandlerFunc handles a single command. arg is the suffix following the
// registered command prefix; data is the downloaded payload for
// commands which carry one.
type HandlerFunc func(resp Responder, arg string, data []byte)

// Registrar is implemented by the transport layer: it dispatches
// incoming commands by prefix and publishes protocol variables.
type Registrar interface {
	Register(prefix string, handler HandlerFunc)
	Publish(name, value string)
}

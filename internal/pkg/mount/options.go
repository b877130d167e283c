// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import "golang.org/x/sys/unix"

// Options is the functional options struct.
type Options struct {
	Flags uintptr
	Data  string
}

// Option is the functional option func.
type Option func(*Options)

// WithFlags sets the mount flags.
func WithFlags(flags uintptr) Option {
	return func(args *Options) {
		args.Flags |= flags
	}
}

// WithReadonly sets the mount readonly.
func WithReadonly() Option {
	return func(args *Options) {
		args.Flags |= unix.MS_RDONLY
	}
}

// WithData sets the mount data.
func WithData(data string) Option {
	return func(args *Options) {
		args.Data = data
	}
}

// NewDefaultOptions initializes options with the setters applied.
func NewDefaultOptions(setters ...Option) Options {
	var opts Options

	for _, setter := range setters {
		setter(&opts)
	}

	return opts
}

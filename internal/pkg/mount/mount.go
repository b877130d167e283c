// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mount provides mount and unmount of filesystems with EBUSY retries.
package mount

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"golang.org/x/sys/unix"
)

// Point represents a linux mount point.
type Point struct {
	source string
	target string
	fstype string
	flags  uintptr
	data   string
}

// NewPoint initializes and returns a mount point.
func NewPoint(source, target, fstype string, setters ...Option) *Point {
	opts := NewDefaultOptions(setters...)

	return &Point{
		source: source,
		target: target,
		fstype: fstype,
		flags:  opts.Flags,
		data:   opts.Data,
	}
}

// Source returns the mount point source field.
func (p *Point) Source() string {
	return p.source
}

// Target returns the mount point target field.
func (p *Point) Target() string {
	return p.target
}

// Mount attaches the filesystem, creating the target directory if
// needed. EBUSY is retried over the course of five seconds.
func (p *Point) Mount() error {
	if err := os.MkdirAll(p.target, 0o755); err != nil {
		return fmt.Errorf("error creating mount point directory %s: %w", p.target, err)
	}

	return retry.Constant(5*time.Second, retry.WithUnits(100*time.Millisecond)).Retry(func() error {
		if err := unix.Mount(p.source, p.target, p.fstype, p.flags, p.data); err != nil {
			if errors.Is(err, unix.EBUSY) {
				return retry.ExpectedError(err)
			}

			return err
		}

		return nil
	})
}

// Unmount detaches the filesystem. EBUSY is retried the same way as in Mount.
func (p *Point) Unmount() error {
	return retry.Constant(5*time.Second, retry.WithUnits(100*time.Millisecond)).Retry(func() error {
		if err := unix.Unmount(p.target, 0); err != nil {
			switch {
			case errors.Is(err, unix.EBUSY):
				return retry.ExpectedError(err)
			case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOENT):
				// not mounted (anymore)
				return nil
			default:
				return err
			}
		}

		return nil
	})
}

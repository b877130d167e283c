// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package flash

import (
	"github.com/siderolabs/droidboot/pkg/makefs"
	"github.com/siderolabs/droidboot/pkg/runcmd"
)

// Option configures the flash engine.
type Option func(*Engine)

// WithRunner overrides the external-process runner.
func WithRunner(runner runcmd.Runner) Option {
	return func(e *Engine) {
		e.runner = runner
	}
}

// WithFilesystemTools overrides the filesystem tooling.
func WithFilesystemTools(tools FilesystemTools) Option {
	return func(e *Engine) {
		e.tools = tools
	}
}

// WithOSIPUpdater plugs in the platform stitched-image updater.
func WithOSIPUpdater(updater OSIPUpdater) Option {
	return func(e *Engine) {
		e.osip = updater
	}
}

// WithDeviceValidator overrides the block-device validation check.
func WithDeviceValidator(validate func(string) bool) Option {
	return func(e *Engine) {
		e.validateDevice = validate
	}
}

// WithTableRereader overrides the partition-table re-read primitive.
func WithTableRereader(reread func(string) error) Option {
	return func(e *Engine) {
		e.rereadTable = reread
	}
}

// ext4Tools drives the real external filesystem tools.
type ext4Tools struct{}

func (ext4Tools) MakeExt4(device, label string) error {
	return makefs.Ext4(device, makefs.WithLabel(label))
}

func (ext4Tools) Resize(device string) error {
	return makefs.Ext4Resize(device)
}

func (ext4Tools) Check(device string) error {
	return makefs.Ext4Check(device)
}

func (ext4Tools) SetMountCount(device string, count int) error {
	return makefs.Ext4SetMountCount(device, count)
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package provision prepares the cache and data partitions before a
// software update package is trusted to apply.
package provision

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/flash"
	"github.com/siderolabs/droidboot/internal/pkg/layout"
)

// ErrFilesystemCorrupted is reported when the integrity check of the
// partition holding the update payload fails.
var ErrFilesystemCorrupted = errors.New("filesystem corrupted")

// Default partitions prepared before applying an update.
const (
	CachePartition = "cache"
	DataPartition  = "userdata"
)

// FlashEngine is the subset of the flash engine the coordinator drives.
type FlashEngine interface {
	Erase(name string) error
	VerifyFilesystem(device string) error
}

// Coordinator runs the provisioning chain. The caller holds the
// exclusive disk lock across the whole chain.
type Coordinator struct {
	layout *layout.DiskLayout
	engine FlashEngine
	logger *zap.Logger

	hook func() error

	cachePartition string
	dataPartition  string
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithPlatformHook installs the optional platform-specific provisioning hook.
func WithPlatformHook(hook func() error) Option {
	return func(c *Coordinator) {
		c.hook = hook
	}
}

// WithPartitions overrides the cache/data partition names.
func WithPartitions(cache, data string) Option {
	return func(c *Coordinator) {
		c.cachePartition = cache
		c.dataPartition = data
	}
}

// NewCoordinator builds a provisioning coordinator.
func NewCoordinator(diskLayout *layout.DiskLayout, engine FlashEngine, logger *zap.Logger, setters ...Option) *Coordinator {
	coordinator := &Coordinator{
		layout: diskLayout,
		engine: engine,
		logger: logger,

		cachePartition: CachePartition,
		dataPartition:  DataPartition,
	}

	for _, setter := range setters {
		setter(coordinator)
	}

	return coordinator
}

// ProvisionPartition sets up a named partition in preparation for an
// update. When the source volume is the very partition being
// provisioned, only its integrity is verified, as erasing it would
// destroy the update payload sitting on it.
func (c *Coordinator) ProvisionPartition(name string, sourceVolume *layout.Volume) error {
	spec, ok := c.layout.Partition(name)
	if !ok {
		return fmt.Errorf("%w: %q, is the disk layout valid?", flash.ErrNotFound, name)
	}

	device := spec.Device
	if device == "" {
		return fmt.Errorf("%w: %q", flash.ErrNoDevice, name)
	}

	// not checking the mirror device; cache and data are expected to be
	// single-device partitions
	if sourceVolume.Device == device {
		c.logger.Info("update payload lives on the partition, checking integrity only", zap.String("name", name))

		if err := c.engine.VerifyFilesystem(device); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFilesystemCorrupted, name, err)
		}

		return nil
	}

	return c.engine.Erase(name)
}

// RunChecks makes sure the disk is set up in a sane way, such that it
// is possible to apply a full update: the optional platform hook, then
// the cache partition, then the data partition. The first failure
// aborts the chain.
func (c *Coordinator) RunChecks(sourceVolume *layout.Volume) error {
	c.logger.Debug("preparing device for provisioning")

	if c.hook != nil {
		if err := c.hook(); err != nil {
			return fmt.Errorf("platform provisioning hook: %w", err)
		}
	}

	if err := c.ProvisionPartition(c.cachePartition, sourceVolume); err != nil {
		return err
	}

	return c.ProvisionPartition(c.dataPartition, sourceVolume)
}

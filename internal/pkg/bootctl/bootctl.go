// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bootctl arbitrates, under a cancellable countdown, whether
// the device applies a discovered software update, boots the default
// kernel, or waits for operator intervention.
package bootctl

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/disklock"
	"github.com/siderolabs/droidboot/internal/pkg/layout"
	"github.com/siderolabs/droidboot/internal/pkg/update"
)

// Outcome of a TryUpdate run.
type Outcome int

// Outcomes.
const (
	// OutcomeSkipped: no package, cancelled countdown, or already handled.
	OutcomeSkipped Outcome = iota
	// OutcomeApplied: the package was applied immediately.
	OutcomeApplied
	// OutcomeDeferred: the package location was stashed for `continue`.
	OutcomeDeferred
)

// Applier applies a discovered update package. Trust in the package is
// delegated to it; this layer performs no verification.
type Applier interface {
	Apply(path string) error
}

// KernelBooter hands control to the second-stage kernel. A successful
// call does not return.
type KernelBooter interface {
	Boot(dir string) error
}

// Detector discovers an update package on a volume.
type Detector interface {
	Detect(vol *layout.Volume) (string, bool)
}

// Provisioner runs the pre-update provisioning chain.
type Provisioner interface {
	RunChecks(vol *layout.Volume) error
}

// Config are the boot-decision parameters resolved at startup.
type Config struct {
	// DelaySeconds is the countdown duration.
	DelaySeconds int
	// UpdatePause defers update application until an explicit continue.
	UpdatePause bool
	// BootPartition names the partition holding second-stage boot images.
	BootPartition string
	// BootDir is the directory within that partition holding the images.
	BootDir string
}

// Controller is the boot-decision engine.
type Controller struct {
	cfg    Config
	layout *layout.DiskLayout
	logger *zap.Logger

	lock        *disklock.Lock
	countdown   *Countdown
	detector    Detector
	provisioner Provisioner
	applier     Applier
	booter      KernelBooter
	mounter     update.Mounter

	mu             sync.Mutex
	updateLocation string
}

// NewController wires the boot-decision engine together.
func NewController(
	cfg Config,
	diskLayout *layout.DiskLayout,
	lock *disklock.Lock,
	countdown *Countdown,
	detector Detector,
	provisioner Provisioner,
	applier Applier,
	booter KernelBooter,
	logger *zap.Logger,
	setters ...Option,
) *Controller {
	controller := &Controller{
		cfg:    cfg,
		layout: diskLayout,
		logger: logger,

		lock:        lock,
		countdown:   countdown,
		detector:    detector,
		provisioner: provisioner,
		applier:     applier,
		booter:      booter,
		mounter:     update.DefaultMounter(),
	}

	for _, setter := range setters {
		setter(controller)
	}

	return controller
}

// Option configures the controller.
type Option func(*Controller)

// WithMounter overrides the mount primitive used for the boot partition.
func WithMounter(mounter update.Mounter) Option {
	return func(c *Controller) {
		c.mounter = mounter
	}
}

// UpdateLocation returns the stashed package location, if any.
func (c *Controller) UpdateLocation() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updateLocation
}

func (c *Controller) setUpdateLocation(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateLocation = location
}

// TryUpdate checks the volume for an automatic update package and, if
// one is found and the operator does not intervene during the
// countdown, provisions the disk and applies or defers the package.
// A package is applied or deferred at most once per boot.
//
// The disk lock is held only across the provisioning checks and the
// apply/stash, not across detection or the countdown, so the command
// thread stays responsive while the countdown runs.
func (c *Controller) TryUpdate(vol *layout.Volume, useCountdown bool) (Outcome, error) {
	// check if we've already been here
	if c.UpdateLocation() != "" {
		return OutcomeSkipped, nil
	}

	location, ok := c.detector.Detect(vol)
	if !ok {
		return OutcomeSkipped, nil
	}

	if useCountdown {
		if c.countdown.Run("SW update", c.cfg.DelaySeconds) != CountdownExpired {
			// operator intervention wins, treat as if nothing were found
			return OutcomeSkipped, nil
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.provisioner.RunChecks(vol); err != nil {
		return OutcomeSkipped, fmt.Errorf("provisioning checks failed: %w", err)
	}

	if !c.cfg.UpdatePause {
		if err := c.applier.Apply(location); err != nil {
			return OutcomeSkipped, fmt.Errorf("error applying update: %w", err)
		}

		return OutcomeApplied, nil
	}

	// stash the location for later use with `continue`
	c.setUpdateLocation(location)

	return OutcomeDeferred, nil
}

// Continue resumes a deferred update, if one is stashed, and then boots
// the default kernel. It only returns on failure.
func (c *Controller) Continue() error {
	if location := c.UpdateLocation(); location != "" {
		c.lock.Lock()
		err := c.applier.Apply(location)
		c.lock.Unlock()

		if err != nil {
			return fmt.Errorf("error applying deferred update: %w", err)
		}
	}

	return c.StartDefaultKernel()
}

// AutobootThread runs the default-boot countdown and, unless cancelled,
// boots the default kernel. Run on its own goroutine.
func (c *Controller) AutobootThread() {
	if c.countdown.Run("boot", c.cfg.DelaySeconds) != CountdownExpired {
		return
	}

	if err := c.StartDefaultKernel(); err != nil {
		c.logger.Error("default boot failed", zap.Error(err))
	}
}

// StartDefaultKernel mounts the second-stage boot partition and hands
// off to the kernel-load primitive. It only returns on failure.
func (c *Controller) StartDefaultKernel() error {
	spec, ok := c.layout.Partition(c.cfg.BootPartition)
	if !ok {
		return fmt.Errorf("unknown second-stage boot partition %q", c.cfg.BootPartition)
	}

	target := filepath.Join(update.ScratchPrefix, spec.Name)

	if err := c.mounter.Mount(spec.Device, target, "ext4"); err != nil {
		return fmt.Errorf("can't mount second-stage boot partition %q: %w", c.cfg.BootPartition, err)
	}

	basepath := filepath.Join(target, c.cfg.BootDir)

	if err := c.booter.Boot(basepath); err != nil {
		return errors.Join(fmt.Errorf("kernel load failed: %w", err), c.mounter.Unmount(target))
	}

	// a successful boot does not return
	return nil
}

// DisableCountdown is the idempotent cancel primitive invoked by the
// input listener; a no-op when no countdown is live.
func (c *Controller) DisableCountdown() {
	c.countdown.Cancel()
}

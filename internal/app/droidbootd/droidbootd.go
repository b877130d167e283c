// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package droidbootd wires the flashing and boot-decision engines into
// a running daemon: it resolves boot-time parameters, applies the disk
// layout, registers the protocol command handlers, and kicks off the
// update-detection and autoboot sequences.
package droidbootd

import (
	"context"
	"fmt"

	"github.com/siderolabs/go-procfs/procfs"
	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/bootctl"
	"github.com/siderolabs/droidboot/internal/pkg/disklock"
	"github.com/siderolabs/droidboot/internal/pkg/fastboot"
	"github.com/siderolabs/droidboot/internal/pkg/flash"
	"github.com/siderolabs/droidboot/internal/pkg/layout"
	"github.com/siderolabs/droidboot/internal/pkg/provision"
	"github.com/siderolabs/droidboot/internal/pkg/update"
	"github.com/siderolabs/droidboot/pkg/runcmd"
)

// SDCardMountPoint is the removable volume scanned for an automatic
// update package at startup.
const SDCardMountPoint = "/sdcard"

// BatteryGate enforces a minimum battery level before the daemon
// proceeds, charging or shutting down as the platform sees fit.
type BatteryGate interface {
	Ensure(minPercent int) error
}

// Options are the static startup inputs.
type Options struct {
	// LayoutPath is the disk layout config file.
	LayoutPath string
	// FstabPath is the filesystem metadata table file.
	FstabPath string
	// Product is the device name published to the protocol and used as
	// the update package marker prefix.
	Product string
}

// App is the assembled daemon.
type App struct {
	opts   Options
	logger *zap.Logger

	params   *Params
	gate     BatteryGate
	runner   runcmd.Runner
	rebooter Rebooter

	layout     *layout.DiskLayout
	volumes    *layout.VolumeTable
	controller *bootctl.Controller
	handlers   *Handlers
}

// AppOption configures the daemon.
type AppOption func(*App)

// WithKernelParams bypasses kernel command line parsing.
func WithKernelParams(params Params) AppOption {
	return func(a *App) {
		a.params = &params
	}
}

// WithBatteryGate installs the platform battery gate.
func WithBatteryGate(gate BatteryGate) AppOption {
	return func(a *App) {
		a.gate = gate
	}
}

// WithProcessRunner overrides the external-process runner.
func WithProcessRunner(runner runcmd.Runner) AppOption {
	return func(a *App) {
		a.runner = runner
	}
}

// WithSystemRebooter overrides the system restart primitive.
func WithSystemRebooter(rebooter Rebooter) AppOption {
	return func(a *App) {
		a.rebooter = rebooter
	}
}

// New builds the daemon.
func New(opts Options, logger *zap.Logger, setters ...AppOption) *App {
	app := &App{
		opts:     opts,
		logger:   logger,
		runner:   runcmd.DefaultRunner,
		rebooter: unixRebooter{},
	}

	for _, setter := range setters {
		setter(app)
	}

	return app
}

// Run brings the daemon up: battery gate, disk layout application,
// command registration, input listener, the one-shot update check, and
// the autoboot countdown. It returns once the daemon is serving; fatal
// setup conditions return an error.
//
//nolint:gocyclo
func (a *App) Run(ctx context.Context, reg fastboot.Registrar) error {
	params := DefaultParams()
	if a.params != nil {
		params = *a.params
	} else if cmdline := procfs.ProcCmdline(); cmdline != nil {
		params = ParseParams(cmdline)
	}

	a.logger.Info("droidboot starting",
		zap.String("product", a.opts.Product),
		zap.Int("delay", params.DelaySeconds),
		zap.Int("scratch_mb", params.ScratchMB),
		zap.Bool("autoboot", params.UseAutoboot),
		zap.Bool("updatepause", params.UpdatePause),
	)

	if params.MinBattery != 0 && a.gate != nil {
		a.logger.Info("verifying battery level before continuing", zap.Int("min_percent", params.MinBattery))

		if err := a.gate.Ensure(params.MinBattery); err != nil {
			return fmt.Errorf("battery gate failed: %w", err)
		}
	}

	var err error

	a.layout, err = layout.Load(a.opts.LayoutPath)
	if err != nil {
		return fmt.Errorf("disk layout unreadable: %w", err)
	}

	a.volumes, err = layout.LoadVolumes(a.opts.FstabPath)
	if err != nil {
		return fmt.Errorf("volume table unreadable: %w", err)
	}

	// partition the disk up front so every later device lookup resolves
	if err = a.layout.Apply(ctx, a.runner, a.logger); err != nil {
		return fmt.Errorf("couldn't apply disk configuration: %w", err)
	}

	lock := disklock.New()

	engine := flash.NewEngine(a.layout, a.logger, flash.WithRunner(a.runner))
	coordinator := provision.NewCoordinator(a.layout, engine, a.logger)
	detector := update.NewDetector(a.opts.Product+".auto-ota.zip", a.logger)
	countdown := bootctl.NewCountdown(a.logger)

	applier := &recoveryApplier{
		layout:   a.layout,
		mounter:  update.DefaultMounter(),
		rebooter: a.rebooter,
		logger:   a.logger,
	}

	a.controller = bootctl.NewController(
		bootctl.Config{
			DelaySeconds:  params.DelaySeconds,
			UpdatePause:   params.UpdatePause,
			BootPartition: params.BootPartition,
			BootDir:       params.BootDir,
		},
		a.layout, lock, countdown,
		detector, coordinator, applier, kexecBooter{runner: a.runner},
		a.logger,
	)

	a.handlers = NewHandlers(
		engine, a.layout, a.controller, lock, a.opts.Product, a.logger,
		WithRunner(a.runner), WithRebooter(a.rebooter),
	)
	a.handlers.Register(reg)

	go a.controller.InputListener()

	if vol, ok := a.volumes.VolumeForPath(SDCardMountPoint); ok {
		outcome, err := a.controller.TryUpdate(vol, true)
		if err != nil {
			a.logger.Error("automatic update failed", zap.Error(err))
		} else if outcome == bootctl.OutcomeApplied {
			a.logger.Info("automatic update applied")
		}
	}

	if params.UseAutoboot && a.controller.UpdateLocation() == "" {
		go a.controller.AutobootThread()
	}

	return nil
}

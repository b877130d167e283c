// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package droidbootd

import (
	"strconv"

	"github.com/siderolabs/go-procfs/procfs"
)

// Kernel parameter names understood by the daemon.
const (
	ParamAutoboot      = "droidboot.bootloader"
	ParamDelay         = "droidboot.delay"
	ParamScratch       = "droidboot.scratch"
	ParamMinBattery    = "droidboot.minbatt"
	ParamBootPartition = "droidboot.bootpart"
	ParamBootDir       = "droidboot.bootdir"
	ParamUpdatePause   = "droidboot.updatepause"
)

// Params are the boot-time tunables, resolved from the kernel command
// line before any engine starts.
type Params struct {
	// UseAutoboot enables the default-boot countdown thread.
	UseAutoboot bool
	// DelaySeconds is the countdown duration for both autoboot and
	// automatic update application.
	DelaySeconds int
	// ScratchMB sizes the protocol download buffer, in MiB.
	ScratchMB int
	// MinBattery is the minimum battery percentage required before the
	// daemon proceeds; zero disables the gate.
	MinBattery int
	// BootPartition names the partition holding second-stage boot images.
	BootPartition string
	// BootDir is the directory within BootPartition holding the images.
	BootDir string
	// UpdatePause defers update application until an explicit continue.
	UpdatePause bool
}

// DefaultParams returns the built-in tunables.
func DefaultParams() Params {
	return Params{
		DelaySeconds:  8,
		ScratchMB:     400,
		MinBattery:    10,
		BootPartition: "userdata",
		BootDir:       "2ndstageboot",
	}
}

// ParseParams applies `droidboot.*` kernel command line overrides on
// top of the defaults. Malformed numeric values are ignored.
func ParseParams(cmdline *procfs.Cmdline) Params {
	params := DefaultParams()

	getInt := func(name string, out *int) {
		if value := cmdline.Get(name).First(); value != nil {
			if n, err := strconv.Atoi(*value); err == nil {
				*out = n
			}
		}
	}

	getBool := func(name string, out *bool) {
		if value := cmdline.Get(name).First(); value != nil {
			if n, err := strconv.Atoi(*value); err == nil {
				*out = n != 0
			}
		}
	}

	getString := func(name string, out *string) {
		if value := cmdline.Get(name).First(); value != nil && *value != "" {
			*out = *value
		}
	}

	getBool(ParamAutoboot, &params.UseAutoboot)
	getInt(ParamDelay, &params.DelaySeconds)
	getInt(ParamScratch, &params.ScratchMB)
	getInt(ParamMinBattery, &params.MinBattery)
	getString(ParamBootPartition, &params.BootPartition)
	getString(ParamBootDir, &params.BootDir)
	getBool(ParamUpdatePause, &params.UpdatePause)

	return params
}

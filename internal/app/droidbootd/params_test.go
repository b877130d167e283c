// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package droidbootd_test

import (
	"testing"

	"github.com/siderolabs/go-procfs/procfs"
	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/droidboot/internal/app/droidbootd"
)

func TestParamDefaults(t *testing.T) {
	params := droidbootd.ParseParams(procfs.NewCmdline("root=/dev/mmcblk0p9 quiet"))

	assert.False(t, params.UseAutoboot)
	assert.Equal(t, 8, params.DelaySeconds)
	assert.Equal(t, 400, params.ScratchMB)
	assert.Equal(t, 10, params.MinBattery)
	assert.Equal(t, "userdata", params.BootPartition)
	assert.Equal(t, "2ndstageboot", params.BootDir)
	assert.False(t, params.UpdatePause)
}

func TestParamOverrides(t *testing.T) {
	cmdline := procfs.NewCmdline(
		"droidboot.bootloader=1 droidboot.delay=15 droidboot.scratch=100 " +
			"droidboot.minbatt=0 droidboot.bootpart=cache droidboot.bootdir=boot droidboot.updatepause=1")

	params := droidbootd.ParseParams(cmdline)

	assert.True(t, params.UseAutoboot)
	assert.Equal(t, 15, params.DelaySeconds)
	assert.Equal(t, 100, params.ScratchMB)
	assert.Zero(t, params.MinBattery)
	assert.Equal(t, "cache", params.BootPartition)
	assert.Equal(t, "boot", params.BootDir)
	assert.True(t, params.UpdatePause)
}

func TestParamMalformedValuesIgnored(t *testing.T) {
	params := droidbootd.ParseParams(procfs.NewCmdline("droidboot.delay=soon droidboot.bootloader=yes"))

	assert.Equal(t, 8, params.DelaySeconds)
	assert.False(t, params.UseAutoboot)
}

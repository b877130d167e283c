// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layoutYAML = `disk: /dev/mmcblk0
partitions:
  - name: boot
    device: /dev/mmcblk0p1
    type: linux
    size_mb: 64
  - name: system
    device: /dev/mmcblk0p2
    type: linux
    size_mb: 512
  - name: cache
    device: /dev/mmcblk0p3
    type: linux
    size_mb: 512
  - name: userdata
    device: /dev/mmcblk0p4
    type: linux
    size_mb: -1
`

const fstabYAML = `volumes:
  - mountpoint: /sdcard
    device: /dev/mmcblk1p1
    device2: /dev/sdb1
    fstype: vfat
  - mountpoint: /cache
    device: /dev/mmcblk0p3
    fstype: ext4
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	d, err := Load(writeConfig(t, layoutYAML))
	require.NoError(t, err)

	assert.Equal(t, "/dev/mmcblk0", d.Disk)

	part, ok := d.Partition("cache")
	require.True(t, ok)
	assert.Equal(t, "/dev/mmcblk0p3", part.Device)
	assert.Equal(t, PartitionTypeLinux, part.Type)

	_, ok = d.Partition("bogus")
	assert.False(t, ok)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "partitions: []\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "disk: /dev/sda\npartitions:\n  - name: x\n    device: /dev/sda1\n    type: weird\n"))
	assert.Error(t, err)
}

func TestLoadVolumes(t *testing.T) {
	table, err := LoadVolumes(writeConfig(t, fstabYAML))
	require.NoError(t, err)

	vol, ok := table.VolumeForPath("/sdcard")
	require.True(t, ok)
	assert.Equal(t, "/dev/mmcblk1p1", vol.Device)
	assert.Equal(t, "/dev/sdb1", vol.Device2)

	_, ok = table.VolumeForPath("/nope")
	assert.False(t, ok)
}

func TestSfdiskScript(t *testing.T) {
	d, err := Load(writeConfig(t, layoutYAML))
	require.NoError(t, err)

	expected := `label: dos

size=64MiB, type=83
size=512MiB, type=83
size=512MiB, type=83
type=83
`

	assert.Equal(t, expected, d.sfdiskScript())
}

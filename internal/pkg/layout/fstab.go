// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Volume describes a mountable filesystem location.
type Volume struct {
	MountPoint string `yaml:"mountpoint"`
	Device     string `yaml:"device"`
	Device2    string `yaml:"device2,omitempty"`
	FsType     string `yaml:"fstype"`
}

// VolumeTable is the filesystem-metadata table loaded at startup.
type VolumeTable struct {
	Volumes []Volume `yaml:"volumes"`
}

// LoadVolumes reads the volume table from a YAML file.
func LoadVolumes(path string) (*VolumeTable, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading volume table: %w", err)
	}

	table := &VolumeTable{}

	if err = yaml.Unmarshal(contents, table); err != nil {
		return nil, fmt.Errorf("error parsing volume table: %w", err)
	}

	return table, nil
}

// VolumeForPath looks up a volume by its mount point.
func (t *VolumeTable) VolumeForPath(mountPoint string) (*Volume, bool) {
	for i := range t.Volumes {
		if t.Volumes[i].MountPoint == mountPoint {
			return &t.Volumes[i], true
		}
	}

	return nil, false
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package layout describes where logical partitions live on physical
// storage and which mountable volumes the device knows about.
//
// The partition specs and the volume table are two distinct namespaces
// loaded from two configuration files; they are correlated only by
// comparing device paths, never by name.
package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PartitionType is the coarse filesystem classification of a partition.
type PartitionType string

// Partition types.
const (
	PartitionTypeLinux PartitionType = "linux"
	PartitionTypeRaw   PartitionType = "raw"
	PartitionTypeOther PartitionType = "other"
)

// PartitionSpec describes a single named partition.
type PartitionSpec struct {
	Name    string        `yaml:"name"`
	Device  string        `yaml:"device"`
	Device2 string        `yaml:"device2,omitempty"`
	Type    PartitionType `yaml:"type"`
	// SizeMB is the partition size in MiB; -1 extends to the end of the disk.
	SizeMB int64 `yaml:"size_mb"`
}

// DiskLayout is the immutable-after-load mapping of partition names to
// device nodes, plus the whole-disk device node.
type DiskLayout struct {
	Disk       string          `yaml:"disk"`
	Partitions []PartitionSpec `yaml:"partitions"`
}

// Load reads a disk layout description from a YAML file.
func Load(path string) (*DiskLayout, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading disk layout: %w", err)
	}

	layout := &DiskLayout{}

	if err = yaml.Unmarshal(contents, layout); err != nil {
		return nil, fmt.Errorf("error parsing disk layout: %w", err)
	}

	if layout.Disk == "" {
		return nil, fmt.Errorf("disk layout %q does not name the base disk device", path)
	}

	for _, part := range layout.Partitions {
		switch part.Type {
		case PartitionTypeLinux, PartitionTypeRaw, PartitionTypeOther:
		default:
			return nil, fmt.Errorf("partition %q has unknown type %q", part.Name, part.Type)
		}
	}

	return layout, nil
}

// Partition looks up a partition spec by name.
func (d *DiskLayout) Partition(name string) (*PartitionSpec, bool) {
	for i := range d.Partitions {
		if d.Partitions[i].Name == name {
			return &d.Partitions[i], true
		}
	}

	return nil, false
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package makefs

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/siderolabs/go-cmd/pkg/cmd"

	"github.com/siderolabs/droidboot/pkg/runcmd"
)

const (
	// FilesystemTypeEXT4 is the filesystem type for EXT4.
	FilesystemTypeEXT4 = "ext4"
)

// Ext4 creates a ext4 filesystem on the specified partition.
func Ext4(partname string, setters ...Option) error {
	if partname == "" {
		return errors.New("missing path to disk")
	}

	opts := NewDefaultOptions(setters...)

	var args []string

	if opts.Label != "" {
		args = append(args, "-L", opts.Label)
	}

	if opts.Force {
		args = append(args, "-F")
	}

	args = append(args, partname)

	_, err := cmd.Run("mkfs.ext4", args...)

	return err
}

// Ext4Resize expands a ext4 filesystem to fill its partition.
func Ext4Resize(partname string) error {
	_, err := cmd.Run("resize2fs", "-F", partname)
	if err != nil {
		return fmt.Errorf("failed to grow ext4 filesystem: %w", err)
	}

	return nil
}

// Ext4Check runs a full consistency check of an ext4 filesystem.
//
// e2fsck reports corrected errors with exit code 1; both 0 and 1 mean
// the filesystem is sound, any other code is a failure.
func Ext4Check(partname string) error {
	return ext4Check(runcmd.DefaultRunner, partname)
}

func ext4Check(runner runcmd.Runner, partname string) error {
	code, err := runner.RunWithCode("e2fsck", "-C", "0", "-f", "-y", partname)
	if err != nil {
		return fmt.Errorf("failed to run e2fsck: %w", err)
	}

	if code > 1 {
		return fmt.Errorf("e2fsck reported unfixed errors (exit code %d)", code)
	}

	return nil
}

// Ext4SetMountCount sets the mount counter of an ext4 filesystem, so
// the first mount after flashing does not trigger spurious checks.
func Ext4SetMountCount(partname string, count int) error {
	_, err := cmd.Run("tune2fs", "-C", strconv.Itoa(count), partname)
	if err != nil {
		return fmt.Errorf("failed to set mount count: %w", err)
	}

	return nil
}

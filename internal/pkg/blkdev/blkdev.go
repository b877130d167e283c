// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blkdev provides helpers for working with raw block device nodes.
package blkdev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/siderolabs/go-blockdevice/v2/block"
	"golang.org/x/sys/unix"
)

// IsBlockDevice reports whether path denotes an actual block device node.
func IsBlockDevice(path string) bool {
	var st unix.Stat_t

	if err := unix.Stat(path, &st); err != nil {
		return false
	}

	return st.Mode&unix.S_IFMT == unix.S_IFBLK
}

// RereadPartitionTable invokes the BLKRRPART ioctl to have the kernel
// re-read the partition table from the device.
func RereadPartitionTable(devname string) error {
	f, err := os.Open(devname)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	unix.Sync()

	if _, _, ret := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKRRPART, 0); ret != 0 {
		return fmt.Errorf("re-read partition table: %v", ret)
	}

	unix.Sync()

	return nil
}

// Lock takes an exclusive advisory lock on the device node, keeping
// other tooling (udev, installers) away while the disk is rewritten.
// The returned function releases the lock and closes the device.
func Lock(ctx context.Context, devname string, timeout time.Duration) (unlock func() error, err error) {
	dev, err := block.NewFromPath(devname, block.OpenForWrite())
	if err != nil {
		return nil, fmt.Errorf("error opening block device %q: %w", devname, err)
	}

	if err = dev.RetryLockWithTimeout(ctx, true, timeout); err != nil {
		return nil, errors.Join(fmt.Errorf("error locking block device %q: %w", devname, err), dev.Close())
	}

	return func() error {
		return errors.Join(dev.Unlock(), dev.Close())
	}, nil
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package droidbootd

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RebootHintAndroid directs MFLD-class firmware, via the OSIP driver,
// to un-corrupt the OSIP header so that the Android kernel is started
// next time instead of the bootloader. Other devices ignore it.
const RebootHintAndroid = "android"

// RebootHintRecovery restarts into the recovery console.
const RebootHintRecovery = "recovery"

// Rebooter performs an immediate system restart, passing a
// platform-specific hint to the firmware. A successful call does not
// return.
type Rebooter interface {
	Reboot(hint string) error
}

type unixRebooter struct{}

// Reboot flushes pending writes and restarts.
func (unixRebooter) Reboot(hint string) error {
	unix.Sync()

	arg, err := unix.BytePtrFromString(hint)
	if err != nil {
		return err
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_REBOOT,
		unix.LINUX_REBOOT_MAGIC1,
		unix.LINUX_REBOOT_MAGIC2,
		unix.LINUX_REBOOT_CMD_RESTART2,
		uintptr(unsafe.Pointer(arg)),
		0, 0,
	)
	if errno != 0 {
		return fmt.Errorf("reboot: %w", errno)
	}

	return nil
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package droidbootd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/layout"
	"github.com/siderolabs/droidboot/internal/pkg/provision"
	"github.com/siderolabs/droidboot/internal/pkg/update"
	"github.com/siderolabs/droidboot/pkg/runcmd"
)

const recoveryCommandDir = "recovery"

// recoveryApplier hands an update package off to the recovery console:
// it writes the package path into the recovery command file on the
// cache partition and restarts into recovery.
type recoveryApplier struct {
	layout   *layout.DiskLayout
	mounter  update.Mounter
	rebooter Rebooter
	logger   *zap.Logger
}

func (a *recoveryApplier) Apply(path string) error {
	spec, ok := a.layout.Partition(provision.CachePartition)
	if !ok {
		return fmt.Errorf("no %q partition to stage the update command", provision.CachePartition)
	}

	target := filepath.Join(update.ScratchPrefix, spec.Name)

	if err := a.mounter.Mount(spec.Device, target, "ext4"); err != nil {
		return fmt.Errorf("can't mount %q: %w", provision.CachePartition, err)
	}

	if err := a.writeCommand(target, path); err != nil {
		return errors.Join(err, a.mounter.Unmount(target))
	}

	if err := a.mounter.Unmount(target); err != nil {
		return fmt.Errorf("error unmounting %q: %w", provision.CachePartition, err)
	}

	a.logger.Info("restarting into recovery to apply update", zap.String("package", path))

	return a.rebooter.Reboot(RebootHintRecovery)
}

func (a *recoveryApplier) writeCommand(target, path string) error {
	commandDir := filepath.Join(target, recoveryCommandDir)

	if err := os.MkdirAll(commandDir, 0o755); err != nil {
		return fmt.Errorf("error creating recovery command directory: %w", err)
	}

	command := fmt.Sprintf("--update_package=%s\n", path)

	if err := os.WriteFile(filepath.Join(commandDir, "command"), []byte(command), 0o644); err != nil {
		return fmt.Errorf("error writing recovery command: %w", err)
	}

	return nil
}

// kexecBooter loads and starts the second-stage kernel found in the
// given directory via the external kexec tool.
type kexecBooter struct {
	runner runcmd.Runner
}

func (b kexecBooter) Boot(dir string) error {
	kernel := filepath.Join(dir, "bzImage")
	ramdisk := filepath.Join(dir, "ramdisk.img")

	if _, err := os.Stat(kernel); err != nil {
		return fmt.Errorf("no second-stage kernel at %s: %w", kernel, err)
	}

	args := []string{"-f", kernel, "--reuse-cmdline"}

	if _, err := os.Stat(ramdisk); err == nil {
		args = append(args, "--initrd="+ramdisk)
	}

	if err := b.runner.Run("kexec", args...); err != nil {
		return fmt.Errorf("kexec failed: %w", err)
	}

	// kexec -f does not return on success
	return nil
}

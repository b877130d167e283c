// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package update discovers automatic software-update packages on
// removable volumes.
package update

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/siderolabs/go-blockdevice/v2/blkid"
	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/layout"
	"github.com/siderolabs/droidboot/internal/pkg/mount"
)

// ScratchPrefix is where volumes are temporarily mounted during detection.
const ScratchPrefix = "/mnt"

// Mounter mounts and unmounts a volume at a scratch mount point.
type Mounter interface {
	Mount(source, target, fstype string) error
	Unmount(target string) error
}

// DefaultMounter mounts via the mount-point primitive.
func DefaultMounter() Mounter {
	return realMounter{}
}

type realMounter struct{}

func (realMounter) Mount(source, target, fstype string) error {
	return mount.NewPoint(source, target, fstype).Mount()
}

func (realMounter) Unmount(target string) error {
	return mount.NewPoint("", target, "").Unmount()
}

// Detector checks removable volumes for a well-known update marker file.
type Detector struct {
	marker string
	logger *zap.Logger

	mounter       Mounter
	scratchPrefix string
	probeFsType   func(device string) (string, error)
}

// Option configures the detector.
type Option func(*Detector)

// WithMounter overrides the mount primitive.
func WithMounter(mounter Mounter) Option {
	return func(d *Detector) {
		d.mounter = mounter
	}
}

// WithScratchPrefix overrides the scratch mount prefix.
func WithScratchPrefix(prefix string) Option {
	return func(d *Detector) {
		d.scratchPrefix = prefix
	}
}

// WithFsTypeProber overrides the filesystem-type probe used when the
// volume table does not pin a type.
func WithFsTypeProber(probe func(device string) (string, error)) Option {
	return func(d *Detector) {
		d.probeFsType = probe
	}
}

// NewDetector builds a detector looking for the given marker filename
// at the root of a volume.
func NewDetector(marker string, logger *zap.Logger, setters ...Option) *Detector {
	detector := &Detector{
		marker: marker,
		logger: logger,

		mounter:       realMounter{},
		scratchPrefix: ScratchPrefix,
		probeFsType:   probeFilesystem,
	}

	for _, setter := range setters {
		setter(detector)
	}

	return detector
}

// Detect mounts the volume at a scratch mount point and checks for the
// marker file at its root. A volume that cannot be mounted, or has no
// marker, is a silent negative, not an error. On success the returned
// path has the scratch prefix stripped, i.e. it is valid relative to
// the volume's real mount point. The scratch mount point is unmounted
// before returning on every path.
func (d *Detector) Detect(vol *layout.Volume) (string, bool) {
	mountpoint := filepath.Join(d.scratchPrefix, vol.MountPoint)
	filename := filepath.Join(mountpoint, d.marker)

	d.logger.Debug("looking for update package", zap.String("path", filename))

	if !d.mountAny(vol, mountpoint) {
		d.logger.Debug("couldn't mount", zap.String("mountpoint", vol.MountPoint))

		return "", false
	}

	defer func() {
		if err := d.mounter.Unmount(mountpoint); err != nil {
			d.logger.Warn("error unmounting scratch mount point", zap.String("mountpoint", mountpoint), zap.Error(err))
		}
	}()

	if _, err := os.Stat(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.logger.Debug("no update package", zap.String("path", filename))
		} else {
			d.logger.Warn("error probing for update package", zap.Error(err))
		}

		return "", false
	}

	d.logger.Info("update package found", zap.String("path", filename))

	return strings.TrimPrefix(filename, d.scratchPrefix), true
}

// mountAny tries the volume's primary device, then the mirror device if
// one is configured.
func (d *Detector) mountAny(vol *layout.Volume, mountpoint string) bool {
	for _, device := range []string{vol.Device, vol.Device2} {
		if device == "" {
			continue
		}

		fstype := vol.FsType
		if fstype == "" || fstype == "auto" {
			probed, err := d.probeFsType(device)
			if err != nil || probed == "" {
				d.logger.Debug("couldn't probe filesystem", zap.String("device", device), zap.Error(err))

				continue
			}

			fstype = probed
		}

		if err := d.mounter.Mount(device, mountpoint, fstype); err == nil {
			return true
		}
	}

	return false
}

func probeFilesystem(device string) (string, error) {
	info, err := blkid.ProbePath(device, blkid.WithSkipLocking(true))
	if err != nil {
		return "", err
	}

	return info.Name, nil
}

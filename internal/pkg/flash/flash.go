// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package flash implements erase and flash operations against raw
// partition device nodes, including the post-flash filesystem repair
// pipeline for ext-family partitions.
package flash

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/droidboot/internal/pkg/blkdev"
	"github.com/siderolabs/droidboot/internal/pkg/layout"
	"github.com/siderolabs/droidboot/pkg/runcmd"
)

// Failure kinds surfaced to the command layer.
var (
	ErrNotFound      = errors.New("unknown partition name")
	ErrNoDevice      = errors.New("partition has no device node")
	ErrInvalidDevice = errors.New("invalid destination node, partition disks?")
	ErrUnsupported   = errors.New("unsupported partition type")
	ErrFormatFailure = errors.New("filesystem creation failed")
	ErrWriteFailure  = errors.New("image write failure")
	ErrDeviceReopen  = errors.New("could not re-read the partition table")
	ErrFsckFailure   = errors.New("fsck of filesystem failed")
)

const (
	// WholeDisk is the partition name sentinel addressing the base disk device.
	WholeDisk = "disk"

	// osipPrefix addresses a stitched firmware image record by integer index.
	osipPrefix = "osip"

	// blockSize is the dd write block size; peak memory of a flash is
	// bounded by the block size, not the payload size.
	blockSize = 8192
)

// OSIPUpdater writes stitched firmware images addressed by record
// index. The record format is a platform contract outside this engine.
type OSIPUpdater interface {
	WriteStitchImage(data []byte, index int) error
}

// FilesystemTools is the external tooling driven by the repair pipeline.
type FilesystemTools interface {
	MakeExt4(device, label string) error
	Resize(device string) error
	Check(device string) error
	SetMountCount(device string, count int) error
}

// Engine performs erase and flash operations against the disk layout.
// All methods expect the exclusive disk lock to be held by the caller.
type Engine struct {
	layout *layout.DiskLayout
	logger *zap.Logger

	runner runcmd.Runner
	tools  FilesystemTools
	osip   OSIPUpdater

	validateDevice func(string) bool
	rereadTable    func(string) error
}

// NewEngine builds a flash engine over the given disk layout.
func NewEngine(diskLayout *layout.DiskLayout, logger *zap.Logger, setters ...Option) *Engine {
	engine := &Engine{
		layout: diskLayout,
		logger: logger,

		runner: runcmd.DefaultRunner,
		tools:  ext4Tools{},

		validateDevice: blkdev.IsBlockDevice,
		rereadTable:    blkdev.RereadPartitionTable,
	}

	for _, setter := range setters {
		setter(engine)
	}

	return engine
}

// Erase quick-formats a named partition by creating a new empty
// filesystem on top of its device node. Data blocks are not zeroed.
func (e *Engine) Erase(name string) error {
	spec, ok := e.layout.Partition(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	device := spec.Device
	if device == "" {
		return fmt.Errorf("%w: %q", ErrNoDevice, name)
	}

	if !e.validateDevice(device) {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}

	if spec.Type != layout.PartitionTypeLinux {
		return fmt.Errorf("%w: %q", ErrUnsupported, spec.Type)
	}

	e.logger.Info("erasing partition", zap.String("name", name), zap.String("device", device))

	if err := e.tools.MakeExt4(device, spec.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrFormatFailure, err)
	}

	return nil
}

// Flash writes an image payload to a destination selected by name:
// the whole-disk sentinel, an osipN stitched-image record, or a named
// partition. A payload opening with the gzip magic is decompressed on
// the way to the device; both paths stream through dd in fixed-size
// blocks. Flashing an ext-family partition ends with the resize /
// fsck / mount-count repair pipeline.
//
//nolint:gocyclo
func (e *Engine) Flash(name string, data []byte) error {
	var (
		device string
		spec   *layout.PartitionSpec
	)

	switch {
	case name == WholeDisk:
		device = e.layout.Disk
	default:
		if index, ok := parseOSIPName(name); ok {
			if e.osip == nil {
				return fmt.Errorf("%w: stitched image updates", ErrUnsupported)
			}

			e.logger.Info("updating stitched image record", zap.Int("index", index))

			return e.osip.WriteStitchImage(data, index)
		}

		var ok bool

		spec, ok = e.layout.Partition(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}

		device = spec.Device
		if device == "" {
			return fmt.Errorf("%w: %q", ErrNoDevice, name)
		}
	}

	if !e.validateDevice(device) {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}

	gzipped := SniffGzip(data)

	e.logger.Info("writing image",
		zap.String("device", device),
		zap.String("size", humanize.IBytes(uint64(len(data)))),
		zap.Bool("gzipped", gzipped),
	)

	if err := e.writeBlocks(device, data, gzipped); err != nil {
		return err
	}

	unix.Sync()

	// writing to the base device node may have replaced the partition
	// table, have the kernel pick it up
	if device == e.layout.Disk {
		if err := e.rereadTable(device); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceReopen, err)
		}
	}

	// the declared partition type is a hint only; run the repair
	// pipeline iff an ext-family superblock is actually present
	if spec != nil && spec.Type == layout.PartitionTypeLinux {
		present, err := e.extFilesystemPresent(device)
		if err != nil {
			return err
		}

		if present {
			return e.repairFilesystem(device)
		}
	}

	return nil
}

// VerifyFilesystem runs the integrity-only check of an ext-family
// filesystem: superblock probe plus consistency check, no resize and
// no erase. Used when the update payload lives on the partition itself.
func (e *Engine) VerifyFilesystem(device string) error {
	present, err := e.extFilesystemPresent(device)
	if err != nil {
		return err
	}

	if !present {
		return fmt.Errorf("%w: no ext filesystem on %q", ErrFsckFailure, device)
	}

	if err = e.tools.Check(device); err != nil {
		return fmt.Errorf("%w: %v", ErrFsckFailure, err)
	}

	return nil
}

func (e *Engine) writeBlocks(device string, data []byte, gzipped bool) error {
	var src io.Reader = bytes.NewReader(data)

	if gzipped {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}

		defer gz.Close() //nolint:errcheck

		src = gz
	}

	written, err := e.runner.RunWithInput(src, "dd", "of="+device, "bs="+strconv.Itoa(blockSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	// the decompressed payload size is unknown up front, the size check
	// only applies to the raw path
	if !gzipped && written != int64(len(data)) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailure, written, len(data))
	}

	return nil
}

func (e *Engine) repairFilesystem(device string) error {
	e.logger.Info("running filesystem checks", zap.String("device", device))

	if err := e.tools.Resize(device); err != nil {
		return fmt.Errorf("could not resize filesystem to fill partition: %w", err)
	}

	if err := e.tools.Check(device); err != nil {
		return fmt.Errorf("%w: %v", ErrFsckFailure, err)
	}

	if err := e.tools.SetMountCount(device, 1); err != nil {
		return fmt.Errorf("could not reset mount count: %w", err)
	}

	return nil
}

func (e *Engine) extFilesystemPresent(device string) (bool, error) {
	sb, err := blkdev.ReadExtSuperBlock(device)
	if err != nil {
		return false, fmt.Errorf("could not read superblock of %q: %w", device, err)
	}

	return sb.Is(), nil
}

// SniffGzip reports whether the payload opens with a gzip member header
// using the deflate compression method.
func SniffGzip(data []byte) bool {
	return len(data) > 3 && data[0] == 0x1f && data[1] == 0x8b && data[3] == 8
}

func parseOSIPName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, osipPrefix)
	if !ok {
		return 0, false
	}

	index, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}

	return index, true
}

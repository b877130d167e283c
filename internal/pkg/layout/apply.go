// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package layout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/blkdev"
	"github.com/siderolabs/droidboot/pkg/runcmd"
)

// MBR partition type codes for each partition classification.
var mbrType = map[PartitionType]string{
	PartitionTypeLinux: "83",
	PartitionTypeRaw:   "da",
	PartitionTypeOther: "83",
}

// Apply rewrites the physical partition table of the base disk to match
// the layout. The in-memory spec set is never mutated. The caller must
// hold the exclusive disk lock.
func (d *DiskLayout) Apply(ctx context.Context, runner runcmd.Runner, logger *zap.Logger) error {
	script := d.sfdiskScript()

	logger.Info("applying disk layout", zap.String("disk", d.Disk), zap.Int("partitions", len(d.Partitions)))

	unlock, err := blkdev.Lock(ctx, d.Disk, 10*time.Second)
	if err != nil {
		return err
	}

	_, err = runner.RunWithInput(strings.NewReader(script), "sfdisk", "--wipe", "always", d.Disk)
	if err != nil {
		err = fmt.Errorf("error applying disk layout: %w", err)
	}

	if err = errors.Join(err, unlock()); err != nil {
		return err
	}

	return blkdev.RereadPartitionTable(d.Disk)
}

// sfdiskScript renders the layout in sfdisk(8) input format. A size of
// -1 extends the partition to the end of the disk.
func (d *DiskLayout) sfdiskScript() string {
	var b strings.Builder

	b.WriteString("label: dos\n\n")

	for _, part := range d.Partitions {
		if part.SizeMB >= 0 {
			fmt.Fprintf(&b, "size=%dMiB, type=%s\n", part.SizeMB, mbrType[part.Type])
		} else {
			fmt.Fprintf(&b, "type=%s\n", mbrType[part.Type])
		}
	}

	return b.String()
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkdev

import (
	"encoding/binary"
	"io"
	"os"
)

const (
	// ExtMagic is the ext2/ext3/ext4 superblock magic number.
	ExtMagic = 0xEF53

	// ExtSuperBlockOffset is the fixed byte offset of the superblock
	// from the start of the device.
	ExtSuperBlockOffset = 1024
)

// ExtSuperBlock represents the leading portion of the ext-family
// superblock, shared by ext2, ext3 and ext4.
type ExtSuperBlock struct {
	InodesCount     uint32
	BlocksCount     uint32
	RBlocksCount    uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	LogFragSize     int32
	BlocksPerGroup  uint32
	FragsPerGroup   uint32
	InodesPerGroup  uint32
	Mtime           uint32
	Wtime           uint32
	MntCount        uint16
	MaxMntCount     int16
	Magic           uint16
	State           uint16
	Errors          uint16
	MinorRevLevel   uint16
	Lastcheck       uint32
	Checkinterval   uint32
	CreatorOS       uint32
	RevLevel        uint32
	DefResuid       uint16
	DefResgid       uint16
}

// Is implements the SuperBlocker interface.
func (sb *ExtSuperBlock) Is() bool {
	return sb.Magic == ExtMagic
}

// Offset implements the SuperBlocker interface.
func (sb *ExtSuperBlock) Offset() int64 {
	return ExtSuperBlockOffset
}

// Type implements the SuperBlocker interface.
func (sb *ExtSuperBlock) Type() string {
	return "ext4"
}

// ReadExtSuperBlock reads the superblock structure from the fixed
// offset of the device and returns it without interpreting the magic.
func ReadExtSuperBlock(devname string) (*ExtSuperBlock, error) {
	f, err := os.Open(devname)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	if _, err = f.Seek(ExtSuperBlockOffset, io.SeekStart); err != nil {
		return nil, err
	}

	sb := &ExtSuperBlock{}

	if err = binary.Read(f, binary.LittleEndian, sb); err != nil {
		return nil, err
	}

	return sb, nil
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkdev_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/droidboot/internal/pkg/blkdev"
)

// magic field offset within the superblock structure.
const magicOffset = 56

func writeImage(t *testing.T, magic uint16) string {
	t.Helper()

	img := make([]byte, 4096)
	binary.LittleEndian.PutUint16(img[blkdev.ExtSuperBlockOffset+magicOffset:], magic)

	// mount count of 3, max mount count of 20
	binary.LittleEndian.PutUint16(img[blkdev.ExtSuperBlockOffset+52:], 3)
	binary.LittleEndian.PutUint16(img[blkdev.ExtSuperBlockOffset+54:], 20)

	path := filepath.Join(t.TempDir(), "image.raw")
	require.NoError(t, os.WriteFile(path, img, 0o600))

	return path
}

func TestReadExtSuperBlock(t *testing.T) {
	sb, err := blkdev.ReadExtSuperBlock(writeImage(t, blkdev.ExtMagic))
	require.NoError(t, err)

	assert.True(t, sb.Is())
	assert.Equal(t, uint16(3), sb.MntCount)
	assert.Equal(t, int16(20), sb.MaxMntCount)
	assert.Equal(t, int64(1024), sb.Offset())
}

func TestReadExtSuperBlockNoMagic(t *testing.T) {
	sb, err := blkdev.ReadExtSuperBlock(writeImage(t, 0x1234))
	require.NoError(t, err)

	assert.False(t, sb.Is())
}

func TestReadExtSuperBlockTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o600))

	_, err := blkdev.ReadExtSuperBlock(path)
	assert.Error(t, err)
}

func TestIsBlockDevice(t *testing.T) {
	assert.False(t, blkdev.IsBlockDevice(writeImage(t, blkdev.ExtMagic)))
	assert.False(t, blkdev.IsBlockDevice("/does/not/exist"))
}

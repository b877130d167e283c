// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package runcmd_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/droidboot/pkg/runcmd"
)

func TestRun(t *testing.T) {
	assert.NoError(t, runcmd.DefaultRunner.Run("true"))

	err := runcmd.DefaultRunner.Run("false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")

	err = runcmd.DefaultRunner.Run("/bin/sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestRunWithCode(t *testing.T) {
	code, err := runcmd.DefaultRunner.RunWithCode("true")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = runcmd.DefaultRunner.RunWithCode("/bin/sh", "-c", "exit 7")
	require.NoError(t, err)
	assert.Equal(t, 7, code)

	_, err = runcmd.DefaultRunner.RunWithCode("this-tool-does-not-exist")
	assert.Error(t, err)
}

func TestRunWithInput(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)

	n, err := runcmd.DefaultRunner.RunWithInput(strings.NewReader(payload), "/bin/sh", "-c", "cat > /dev/null")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package runcmd runs external tools with structured exit status,
// bounded stderr capture and optional stdin streaming.
package runcmd

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/armon/circbuf"
)

// MaxStderrLen is the maximum length of stderr output captured for the error message.
const MaxStderrLen = 4096

// Runner executes external tools. The default implementation forks real
// processes; tests substitute fakes.
type Runner interface {
	// Run executes a tool, treating any nonzero exit as an error.
	Run(name string, args ...string) error

	// RunWithCode executes a tool and reports its exit code. A non-nil
	// error is returned only when the process could not be started or
	// was killed by a signal; a plain nonzero exit is (code, nil).
	RunWithCode(name string, args ...string) (int, error)

	// RunWithInput streams stdin into the tool and reports how many
	// bytes were consumed from the reader before the process exited.
	RunWithInput(stdin io.Reader, name string, args ...string) (int64, error)
}

type executor struct{}

// DefaultRunner forks real processes.
var DefaultRunner Runner = executor{}

func (executor) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)

	stderr, err := circbuf.NewBuffer(MaxStderrLen)
	if err != nil {
		return err
	}

	cmd.Stderr = stderr

	if err = cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}

	return nil
}

func (executor) RunWithCode(name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)

	stderr, err := circbuf.NewBuffer(MaxStderrLen)
	if err != nil {
		return -1, err
	}

	cmd.Stderr = stderr

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}

	return -1, fmt.Errorf("%s: %s", err, stderr.String())
}

func (executor) RunWithInput(stdin io.Reader, name string, args ...string) (int64, error) {
	cmd := exec.Command(name, args...)

	stderr, err := circbuf.NewBuffer(MaxStderrLen)
	if err != nil {
		return 0, err
	}

	cmd.Stderr = stderr

	counted := &countingReader{r: stdin}
	cmd.Stdin = counted

	if err = cmd.Run(); err != nil {
		return counted.n, fmt.Errorf("%s: %s", err, stderr.String())
	}

	return counted.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)

	return n, err
}

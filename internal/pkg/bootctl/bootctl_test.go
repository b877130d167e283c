// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootctl_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/droidboot/internal/pkg/bootctl"
	"github.com/siderolabs/droidboot/internal/pkg/disklock"
	"github.com/siderolabs/droidboot/internal/pkg/layout"
)

type fakeDetector struct {
	location string
	detected int
}

func (f *fakeDetector) Detect(vol *layout.Volume) (string, bool) {
	f.detected++

	return f.location, f.location != ""
}

type fakeProvisioner struct {
	err   error
	calls int
}

func (f *fakeProvisioner) RunChecks(vol *layout.Volume) error {
	f.calls++

	return f.err
}

type fakeApplier struct {
	applied []string
	err     error
}

func (f *fakeApplier) Apply(path string) error {
	f.applied = append(f.applied, path)

	return f.err
}

type fakeBooter struct {
	booted []string
	err    error
}

func (f *fakeBooter) Boot(dir string) error {
	f.booted = append(f.booted, dir)

	return f.err
}

type noopMounter struct {
	mounted []string
}

func (m *noopMounter) Mount(source, target, fstype string) error {
	m.mounted = append(m.mounted, target)

	return nil
}

func (m *noopMounter) Unmount(target string) error { return nil }

type testRig struct {
	controller  *bootctl.Controller
	countdown   *bootctl.Countdown
	detector    *fakeDetector
	provisioner *fakeProvisioner
	applier     *fakeApplier
	booter      *fakeBooter
	mounter     *noopMounter
}

func newTestRig(t *testing.T, cfg bootctl.Config, location string) *testRig {
	t.Helper()

	logger := zaptest.NewLogger(t)

	rig := &testRig{
		countdown:   bootctl.NewCountdown(logger, bootctl.WithTick(time.Millisecond)),
		detector:    &fakeDetector{location: location},
		provisioner: &fakeProvisioner{},
		applier:     &fakeApplier{},
		booter:      &fakeBooter{},
		mounter:     &noopMounter{},
	}

	diskLayout := &layout.DiskLayout{
		Disk: "/dev/mmcblk0",
		Partitions: []layout.PartitionSpec{
			{Name: "userdata", Device: "/dev/mmcblk0p4", Type: layout.PartitionTypeLinux},
		},
	}

	rig.controller = bootctl.NewController(
		cfg, diskLayout, disklock.New(), rig.countdown,
		rig.detector, rig.provisioner, rig.applier, rig.booter,
		logger,
		bootctl.WithMounter(rig.mounter),
	)

	return rig
}

func sdcard() *layout.Volume {
	return &layout.Volume{MountPoint: "/sdcard", Device: "/dev/mmcblk1p1", FsType: "vfat"}
}

func TestCountdownExpires(t *testing.T) {
	countdown := bootctl.NewCountdown(zaptest.NewLogger(t), bootctl.WithTick(time.Millisecond))

	assert.Equal(t, bootctl.CountdownExpired, countdown.Run("boot", 5))
}

func TestCountdownCancelled(t *testing.T) {
	countdown := bootctl.NewCountdown(zaptest.NewLogger(t), bootctl.WithTick(10*time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		countdown.Cancel()
	}()

	assert.Equal(t, bootctl.CountdownCancelled, countdown.Run("boot", 1000))
}

func TestCancelIsIdempotent(t *testing.T) {
	countdown := bootctl.NewCountdown(zaptest.NewLogger(t), bootctl.WithTick(time.Millisecond))

	// no countdown live
	countdown.Cancel()
	countdown.Cancel()

	assert.Equal(t, bootctl.CountdownExpired, countdown.Run("boot", 1))
}

func TestTryUpdateNoPackage(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 1}, "")

	outcome, err := rig.controller.TryUpdate(sdcard(), false)
	require.NoError(t, err)
	assert.Equal(t, bootctl.OutcomeSkipped, outcome)
	assert.Zero(t, rig.provisioner.calls)
}

func TestTryUpdateApplies(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 1}, "/sdcard/device.auto-ota.zip")

	outcome, err := rig.controller.TryUpdate(sdcard(), false)
	require.NoError(t, err)
	assert.Equal(t, bootctl.OutcomeApplied, outcome)
	assert.Equal(t, 1, rig.provisioner.calls)
	assert.Equal(t, []string{"/sdcard/device.auto-ota.zip"}, rig.applier.applied)
}

func TestTryUpdateDefers(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 1, UpdatePause: true}, "/sdcard/device.auto-ota.zip")

	outcome, err := rig.controller.TryUpdate(sdcard(), false)
	require.NoError(t, err)
	assert.Equal(t, bootctl.OutcomeDeferred, outcome)
	assert.Empty(t, rig.applier.applied)
	assert.Equal(t, "/sdcard/device.auto-ota.zip", rig.controller.UpdateLocation())
}

func TestTryUpdateIdempotent(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 1, UpdatePause: true}, "/sdcard/device.auto-ota.zip")

	outcome, err := rig.controller.TryUpdate(sdcard(), false)
	require.NoError(t, err)
	require.Equal(t, bootctl.OutcomeDeferred, outcome)

	// second run is a no-op regardless of volume contents
	outcome, err = rig.controller.TryUpdate(sdcard(), false)
	require.NoError(t, err)
	assert.Equal(t, bootctl.OutcomeSkipped, outcome)
	assert.Equal(t, 1, rig.detector.detected)
	assert.Equal(t, 1, rig.provisioner.calls)
}

func TestTryUpdateCountdownExpiry(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 3}, "/sdcard/device.auto-ota.zip")

	outcome, err := rig.controller.TryUpdate(sdcard(), true)
	require.NoError(t, err)
	assert.Equal(t, bootctl.OutcomeApplied, outcome)
}

func TestTryUpdateCountdownCancelled(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 1000}, "/sdcard/device.auto-ota.zip")

	go func() {
		time.Sleep(20 * time.Millisecond)
		rig.controller.DisableCountdown()
	}()

	outcome, err := rig.controller.TryUpdate(sdcard(), true)
	require.NoError(t, err)
	assert.Equal(t, bootctl.OutcomeSkipped, outcome)

	// the gated action did not occur
	assert.Zero(t, rig.provisioner.calls)
	assert.Empty(t, rig.applier.applied)
}

func TestTryUpdateProvisioningFailure(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{DelaySeconds: 1}, "/sdcard/device.auto-ota.zip")
	rig.provisioner.err = errors.New("cache filesystem corrupted")

	_, err := rig.controller.TryUpdate(sdcard(), false)
	require.Error(t, err)

	// neither applied nor deferred
	assert.Empty(t, rig.applier.applied)
	assert.Empty(t, rig.controller.UpdateLocation())
}

func TestContinueResumesDeferred(t *testing.T) {
	cfg := bootctl.Config{DelaySeconds: 1, UpdatePause: true, BootPartition: "userdata", BootDir: "2ndstageboot"}
	rig := newTestRig(t, cfg, "/sdcard/device.auto-ota.zip")

	_, err := rig.controller.TryUpdate(sdcard(), false)
	require.NoError(t, err)

	require.NoError(t, rig.controller.Continue())
	assert.Equal(t, []string{"/sdcard/device.auto-ota.zip"}, rig.applier.applied)
	assert.Equal(t, []string{"/mnt/userdata/2ndstageboot"}, rig.booter.booted)
}

func TestStartDefaultKernel(t *testing.T) {
	cfg := bootctl.Config{BootPartition: "userdata", BootDir: "2ndstageboot"}
	rig := newTestRig(t, cfg, "")

	require.NoError(t, rig.controller.StartDefaultKernel())
	assert.Equal(t, []string{"/mnt/userdata"}, rig.mounter.mounted)
	assert.Equal(t, []string{"/mnt/userdata/2ndstageboot"}, rig.booter.booted)
}

func TestStartDefaultKernelUnknownPartition(t *testing.T) {
	rig := newTestRig(t, bootctl.Config{BootPartition: "nope"}, "")

	assert.Error(t, rig.controller.StartDefaultKernel())
}

func TestStartDefaultKernelBootFailure(t *testing.T) {
	cfg := bootctl.Config{BootPartition: "userdata", BootDir: "2ndstageboot"}
	rig := newTestRig(t, cfg, "")
	rig.booter.err = errors.New("kexec failed")

	assert.Error(t, rig.controller.StartDefaultKernel())
}

func TestAutobootCancelled(t *testing.T) {
	cfg := bootctl.Config{DelaySeconds: 1000, BootPartition: "userdata"}
	rig := newTestRig(t, cfg, "")

	done := make(chan struct{})

	go func() {
		rig.controller.AutobootThread()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	rig.controller.DisableCountdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("autoboot thread did not return after cancellation")
	}

	assert.Empty(t, rig.booter.booted)
}

func TestAutobootExpires(t *testing.T) {
	cfg := bootctl.Config{DelaySeconds: 2, BootPartition: "userdata", BootDir: "2ndstageboot"}
	rig := newTestRig(t, cfg, "")

	rig.controller.AutobootThread()

	assert.Equal(t, []string{"/mnt/userdata/2ndstageboot"}, rig.booter.booted)
}

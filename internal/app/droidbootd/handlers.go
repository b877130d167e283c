// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package droidbootd

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/siderolabs/droidboot/internal/pkg/bootctl"
	"github.com/siderolabs/droidboot/internal/pkg/disklock"
	"github.com/siderolabs/droidboot/internal/pkg/fastboot"
	"github.com/siderolabs/droidboot/internal/pkg/layout"
	"github.com/siderolabs/droidboot/pkg/runcmd"
)

// OEM sub-commands.
const (
	oemSystem    = "system"
	oemPartition = "partition"
)

// FlashEngine is the partition-manipulation surface the handlers drive.
type FlashEngine interface {
	Erase(name string) error
	Flash(name string, data []byte) error
}

// Handlers binds protocol commands to the flashing and boot-decision
// engines. Every disk-touching command runs under the shared disk lock.
type Handlers struct {
	engine     FlashEngine
	layout     *layout.DiskLayout
	controller *bootctl.Controller
	lock       *disklock.Lock
	runner     runcmd.Runner
	rebooter   Rebooter
	logger     *zap.Logger

	product string
}

// NewHandlers builds the command handler set.
func NewHandlers(
	engine FlashEngine,
	diskLayout *layout.DiskLayout,
	controller *bootctl.Controller,
	lock *disklock.Lock,
	product string,
	logger *zap.Logger,
	setters ...HandlersOption,
) *Handlers {
	handlers := &Handlers{
		engine:     engine,
		layout:     diskLayout,
		controller: controller,
		lock:       lock,
		runner:     runcmd.DefaultRunner,
		rebooter:   unixRebooter{},
		logger:     logger,
		product:    product,
	}

	for _, setter := range setters {
		setter(handlers)
	}

	return handlers
}

// HandlersOption configures the handler set.
type HandlersOption func(*Handlers)

// WithRunner overrides the external-process runner.
func WithRunner(runner runcmd.Runner) HandlersOption {
	return func(h *Handlers) {
		h.runner = runner
	}
}

// WithRebooter overrides the system restart primitive.
func WithRebooter(rebooter Rebooter) HandlersOption {
	return func(h *Handlers) {
		h.rebooter = rebooter
	}
}

// Register wires the handlers into the protocol transport and publishes
// the identification variables.
func (h *Handlers) Register(reg fastboot.Registrar) {
	reg.Register("oem", h.cmdOEM)
	reg.Register("boot", h.cmdBoot)
	reg.Register("reboot", h.cmdReboot)
	reg.Register("erase:", h.cmdErase)
	reg.Register("flash:", h.cmdFlash)
	reg.Register("continue", h.cmdContinue)

	reg.Publish("product", h.product)
	reg.Publish("kernel", "droidboot")
}

func (h *Handlers) cmdErase(resp fastboot.Responder, arg string, data []byte) {
	h.logger.Info("erase", zap.String("partition", arg))

	h.lock.Lock()
	err := h.engine.Erase(arg)
	h.lock.Unlock()

	if err != nil {
		h.logger.Error("erase failed", zap.String("partition", arg), zap.Error(err))
		resp.Fail(err.Error())

		return
	}

	resp.Okay("")
}

func (h *Handlers) cmdFlash(resp fastboot.Responder, arg string, data []byte) {
	h.logger.Info("flash", zap.String("partition", arg), zap.Int("size", len(data)))

	h.lock.Lock()
	err := h.engine.Flash(arg, data)
	h.lock.Unlock()

	if err != nil {
		h.logger.Error("flash failed", zap.String("partition", arg), zap.Error(err))
		resp.Fail(err.Error())

		return
	}

	resp.Okay("")
}

func (h *Handlers) cmdOEM(resp fastboot.Responder, arg string, data []byte) {
	command := strings.TrimLeft(arg, " ")

	switch {
	case strings.HasPrefix(command, oemSystem):
		shellCmd := strings.TrimLeft(strings.TrimPrefix(command, oemSystem), " ")

		code, err := h.runner.RunWithCode("/bin/sh", "-c", shellCmd)
		if err != nil || code != 0 {
			h.logger.Error("OEM system command failed", zap.String("command", shellCmd), zap.Int("code", code), zap.Error(err))
			resp.Fail("OEM system command failed")

			return
		}

		resp.Okay("")
	case strings.HasPrefix(command, oemPartition):
		h.logger.Info("applying disk configuration")

		h.lock.Lock()
		err := h.layout.Apply(context.Background(), h.runner, h.logger)
		h.lock.Unlock()

		if err != nil {
			h.logger.Error("disk configuration failed", zap.Error(err))
			resp.Fail("apply disk configuration error")

			return
		}

		resp.Okay("")
	default:
		resp.Fail("unknown OEM command")
	}
}

func (h *Handlers) cmdBoot(resp fastboot.Responder, arg string, data []byte) {
	resp.Fail("boot command stubbed on this platform!")
}

func (h *Handlers) cmdReboot(resp fastboot.Responder, arg string, data []byte) {
	// the reply must go out before the restart takes effect
	resp.Okay("")

	h.logger.Info("rebooting")

	if err := h.rebooter.Reboot(RebootHintAndroid); err != nil {
		// nothing left to recover with
		h.logger.Fatal("reboot failed", zap.Error(err))
	}
}

func (h *Handlers) cmdContinue(resp fastboot.Responder, arg string, data []byte) {
	if err := h.controller.Continue(); err != nil {
		h.logger.Error("default boot failed", zap.Error(err))
	}

	// reaching this point means the kernel handoff did not happen
	resp.Fail("Unable to boot default kernel!")
}

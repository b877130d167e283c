// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/droidboot/internal/app/droidbootd"
	"github.com/siderolabs/droidboot/internal/pkg/fastboot"
	"github.com/siderolabs/droidboot/pkg/logging"
)

var options = droidbootd.Options{}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "droidbootd",
	Short: "On-device flashing and boot-decision daemon",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.ZapLogger(
			logging.NewLogDestination(os.Stderr, zapcore.InfoLevel, logging.WithColoredLevels()),
		)

		app := droidbootd.New(options, logger)
		registry := fastboot.NewRegistry()

		if err := app.Run(cmd.Context(), registry); err != nil {
			return err
		}

		logger.Info("listening for the fastboot protocol")

		// the USB transport drives the registry from here on; the
		// process only exits on a signal
		ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
		defer stop()

		<-ctx.Done()

		return nil
	},
}

// Execute runs the root command. This is called by main.main(). It
// only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&options.LayoutPath, "layout", "/etc/disk_layout.yaml", "The path to the disk layout config")
	rootCmd.PersistentFlags().StringVar(&options.FstabPath, "fstab", "/etc/recovery.fstab.yaml", "The path to the volume table")
	rootCmd.PersistentFlags().StringVar(&options.Product, "product", "droidboot", "The device product name")
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mpqtt",
	Short: "PI30 solar inverter to MQTT bridge",
	Long: `mpqtt - Polls a PI30 protocol solar inverter and publishes its readings to MQTT.

Settings come from a YAML file (--config, $MPQTT_CONFIG, ./config.yaml or
/etc/mpqtt/config.yaml), MPQTT_* environment variables and the flags below.

Connection modes:
  Raw device: --transport raw --port /dev/hidraw0
  Serial:     --transport serial --port /dev/ttyUSB0 [--baud 2400]
  WebSocket:  --transport websocket --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the MPQTT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Log every frame")

	// Inverter connection flags
	rootCmd.PersistentFlags().StringP("transport", "t", "", "Inverter transport: raw, serial or websocket")
	rootCmd.PersistentFlags().StringP("port", "p", "", "Device path (raw or serial)")
	rootCmd.PersistentFlags().IntP("baud", "b", 2400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().String("username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitError carries the process exit code for a failed subcommand.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitErrorf(code int, format string, args ...interface{}) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *ExitError
	if errors.As(err, &e) {
		return e.Code
	}
	return 1
}

// loadConfig merges the config file, environment and the flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cfgFile, cmd.Flags())
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(cfg.Logging, cfg.Debug)
}

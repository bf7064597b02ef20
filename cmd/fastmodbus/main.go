// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// fastmodbus is the command line tool for Fast Modbus buses: device
// discovery by serial number, addressed register access and the event
// stream, all over one RS-485 port.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wirenlab/fastmodbus/internal/config"
	"github.com/wirenlab/fastmodbus/internal/master"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport/rtu"
)

var (
	cfgFile string
	device  string
	baud    int
	debug   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fastmodbus",
		Short: "Fast Modbus bus tool",
		Long: `fastmodbus talks to Fast Modbus devices over a shared RS-485 bus.

Devices are addressed by their 32-bit serial number, so the bus can be
scanned and used before regular slave ids are assigned. Register change
events replace polling for inputs that must not miss a transition.`,
		SilenceUsage: true,
	}

	// Accept underscore spellings for flags that mirror config keys.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "", "serial device, e.g. /dev/ttyRS485-1")
	rootCmd.PersistentFlags().IntVarP(&baud, "baud", "b", 0, "baud rate")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every frame on the wire")

	rootCmd.AddCommand(
		newScanCmd(),
		newReadCmd(),
		newWriteCmd(),
		newConfigEventsCmd(),
		newEventsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if device != "" {
		cfg.Serial.Device = device
	}
	if baud > 0 {
		cfg.Serial.BaudRate = baud
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if cfg.Serial.Device == "" {
		return nil, fmt.Errorf("no serial device given (flag -d or serial.device in config)")
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

// newMaster opens the serial port and builds the protocol stack on it.
// The returned close function releases the port.
func newMaster() (*master.Master, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	fn, err := cfg.Protocol.FunctionCode()
	if err != nil {
		return nil, nil, err
	}
	client := rtu.NewClient(cfg.Serial)
	m := master.New(client, master.Options{
		Function:       fn,
		ConfirmRetries: cfg.Protocol.ConfirmRetries,
	})
	return m, client.Close, nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		// Results go to stdout; logs must not mix with them.
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// parseSerial accepts decimal or 0x-prefixed hex.
func parseSerial(s string) (fastmodbus.SerialNumber, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid serial number %q", s)
	}
	return fastmodbus.SerialNumber(n), nil
}

func parseUint16(s, what string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return uint16(n), nil
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Log      LogConfig      `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// ProtocolConfig defines Fast Modbus protocol knobs
type ProtocolConfig struct {
	// Command is the extended function code: "0x46" (current firmware)
	// or "0x60" (older firmware).
	Command string `mapstructure:"command"`

	// ConfirmRetries bounds the re-sends of a scan confirm before a
	// discovered device is reported unconfirmed.
	ConfirmRetries int `mapstructure:"confirm_retries"`
}

// FunctionCode resolves the configured command string to the wire byte.
func (p ProtocolConfig) FunctionCode() (byte, error) {
	switch p.Command {
	case "", "0x46":
		return 0x46, nil
	case "0x60":
		return 0x60, nil
	}
	return 0, fmt.Errorf("unknown fast modbus command %q (want 0x46 or 0x60)", p.Command)
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/fastmodbus/")
		v.AddConfigPath("$HOME/.fastmodbus")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 2)
	v.SetDefault("protocol.command", "0x46")
	v.SetDefault("protocol.confirm_retries", 2)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: everything can come from flags.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if _, err := config.Protocol.FunctionCode(); err != nil {
		return nil, err
	}
	if config.Protocol.ConfirmRetries < 0 {
		config.Protocol.ConfirmRetries = 0
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}

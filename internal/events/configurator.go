// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package events drives per-register change notifications: enabling them
// on a device and draining the resulting stream with acknowledgment-based
// flow control.
package events

import (
	"context"

	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport"
)

// Configurator applies event configurations to a single device.
type Configurator struct {
	ex transport.Exchanger
	fn byte
}

// NewConfigurator creates a Configurator speaking the given extended
// function code.
func NewConfigurator(ex transport.Exchanger, function byte) *Configurator {
	if function == 0 {
		function = fastmodbus.FuncCodeFastModbus
	}
	return &Configurator{ex: ex, fn: function}
}

// Configure sends one frame carrying the whole configuration set and
// returns the device's verdict per record, index-aligned with configs.
//
// The set is validated locally first; an invalid set never reaches the
// line. Partial acceptance is returned as data, not as an error, and is
// not retried here: rejecting some records while accepting others can be
// exactly what the caller asked for.
func (c *Configurator) Configure(ctx context.Context, slaveID byte, configs []fastmodbus.EventConfig) ([]fastmodbus.ConfigAck, error) {
	if err := fastmodbus.ValidateEventConfigs(configs); err != nil {
		return nil, err
	}

	request, err := fastmodbus.NewEventConfigRequest(c.fn, slaveID, configs).Encode()
	if err != nil {
		return nil, err
	}
	raw, err := c.ex.Exchange(ctx, request)
	if err != nil {
		return nil, err
	}
	frame, err := fastmodbus.Decode(raw)
	if err != nil {
		return nil, err
	}
	return fastmodbus.ParseEventConfigAcks(frame, c.fn, len(configs))
}

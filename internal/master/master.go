// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master is the high-level client surface: one Master per bus,
// offering discovery, addressed register access and the event stream on
// top of a single exchanger.
package master

import (
	"context"
	"fmt"

	"github.com/wirenlab/fastmodbus/internal/events"
	"github.com/wirenlab/fastmodbus/internal/scan"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport"
)

// Options tunes a Master.
type Options struct {
	// Function is the extended function code, 0x46 or 0x60.
	Function byte
	// ConfirmRetries is passed through to the scanner.
	ConfirmRetries int
}

// Master multiplexes every Fast Modbus operation over one exchanger.
// Calls must not overlap; the bus is half-duplex and the exchanger owns
// no queue.
type Master struct {
	ex transport.Exchanger
	fn byte

	scanner    *scan.Scanner
	configurer *events.Configurator
	consumer   *events.Consumer
}

// New creates a Master.
func New(ex transport.Exchanger, opt Options) *Master {
	fn := opt.Function
	if fn == 0 {
		fn = fastmodbus.FuncCodeFastModbus
	}
	return &Master{
		ex:         ex,
		fn:         fn,
		scanner:    scan.New(ex, scan.Options{Function: fn, ConfirmRetries: opt.ConfirmRetries}),
		configurer: events.NewConfigurator(ex, fn),
		consumer:   events.NewConsumer(ex, fn),
	}
}

// ScanBus discovers every device on the bus. With readModels set, each
// discovered device's model string is read from its holding registers;
// a device that stops answering between discovery and the model read is
// still reported, with an empty model.
func (m *Master) ScanBus(ctx context.Context, readModels bool) ([]scan.Device, error) {
	devices, err := m.scanner.Scan(ctx)
	if err != nil {
		return devices, err
	}
	if !readModels {
		return devices, nil
	}
	for i := range devices {
		model, err := m.ReadDeviceModel(ctx, devices[i].Serial)
		if err != nil {
			continue
		}
		devices[i].Model = model
	}
	return devices, nil
}

// ReadRegisters reads count registers of the given type from the device
// with the given serial number.
func (m *Master) ReadRegisters(ctx context.Context, serial fastmodbus.SerialNumber, regType fastmodbus.RegisterType, start, count uint16) ([]uint16, error) {
	request, err := fastmodbus.NewReadRegisters(m.fn, serial, regType, start, count).Encode()
	if err != nil {
		return nil, err
	}
	raw, err := m.ex.Exchange(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("read %v %d+%d from %v: %w", regType, start, count, serial, err)
	}
	frame, err := fastmodbus.Decode(raw)
	if err != nil {
		return nil, err
	}
	return fastmodbus.ParseReadResponse(frame, m.fn, serial, regType, count)
}

// WriteRegisters writes values to consecutive holding registers of the
// device with the given serial number.
func (m *Master) WriteRegisters(ctx context.Context, serial fastmodbus.SerialNumber, start uint16, values []uint16) error {
	request, err := fastmodbus.NewWriteRegisters(m.fn, serial, start, values).Encode()
	if err != nil {
		return err
	}
	raw, err := m.ex.Exchange(ctx, request)
	if err != nil {
		return fmt.Errorf("write %d registers at %d to %v: %w", len(values), start, serial, err)
	}
	frame, err := fastmodbus.Decode(raw)
	if err != nil {
		return err
	}
	return fastmodbus.ParseWriteResponse(frame, m.fn, serial, start, uint16(len(values)))
}

// ReadDeviceModel reads and decodes the model string.
func (m *Master) ReadDeviceModel(ctx context.Context, serial fastmodbus.SerialNumber) (string, error) {
	values, err := m.ReadRegisters(ctx, serial, fastmodbus.Holding, fastmodbus.ModelRegisterStart, fastmodbus.ModelRegisterCount)
	if err != nil {
		return "", err
	}
	return fastmodbus.DecodeModel(values), nil
}

// ConfigureEvents applies event configurations to one device, addressed
// by its regular slave id.
func (m *Master) ConfigureEvents(ctx context.Context, slaveID byte, configs []fastmodbus.EventConfig) ([]fastmodbus.ConfigAck, error) {
	return m.configurer.Configure(ctx, slaveID, configs)
}

// PollEvents performs one event exchange. See events.Consumer.Poll for
// the cursor contract.
func (m *Master) PollEvents(ctx context.Context, ack fastmodbus.AckState, minSlaveID, maxDataLength byte) ([]fastmodbus.EventRecord, fastmodbus.AckState, error) {
	return m.consumer.Poll(ctx, ack, minSlaveID, maxDataLength)
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"testing"

	"github.com/wirenlab/fastmodbus/internal/bustest"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
)

// TestDeviceLifecycle walks one device through the whole protocol:
// discovery with model resolution, addressed register access, event
// configuration and the event stream.
func TestDeviceLifecycle(t *testing.T) {
	bus := &bustest.Bus{}
	dev := bus.Add(bustest.NewDevice(12345, 5))
	dev.Model = "WBMR6C"
	for i := uint16(0); i < 5; i++ {
		dev.Holding[100+i] = 1000 + i
	}

	m := New(bus, Options{})
	ctx := context.Background()

	devices, err := m.ScanBus(ctx, true)
	if err != nil {
		t.Fatalf("ScanBus failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("discovered %d devices, want 1", len(devices))
	}
	d := devices[0]
	if d.Serial != 12345 || d.SlaveID != 5 || !d.Confirmed {
		t.Fatalf("device = %+v", d)
	}
	if d.Model != "WBMR6C" {
		t.Errorf("model = %q, want WBMR6C", d.Model)
	}

	values, err := m.ReadRegisters(ctx, 12345, fastmodbus.Holding, 100, 5)
	if err != nil {
		t.Fatalf("ReadRegisters failed: %v", err)
	}
	for i, v := range values {
		if v != 1000+uint16(i) {
			t.Errorf("values[%d] = %d, want %d", i, v, 1000+i)
		}
	}

	if err := m.WriteRegisters(ctx, 12345, 100, []uint16{42, 43}); err != nil {
		t.Fatalf("WriteRegisters failed: %v", err)
	}
	if dev.Holding[100] != 42 || dev.Holding[101] != 43 {
		t.Errorf("write not applied: %d %d", dev.Holding[100], dev.Holding[101])
	}

	configs, err := fastmodbus.ParseEventConfigs("discrete:0:2:1,holding:5:2:2")
	if err != nil {
		t.Fatal(err)
	}
	acks, err := m.ConfigureEvents(ctx, 5, configs)
	if err != nil {
		t.Fatalf("ConfigureEvents failed: %v", err)
	}
	for i, a := range acks {
		if !a.Accepted {
			t.Fatalf("config record %d rejected", i)
		}
	}

	dev.Trigger(fastmodbus.Discrete, 0, 1)

	records, ack, err := m.PollEvents(ctx, fastmodbus.AckState{}, 1, 100)
	if err != nil {
		t.Fatalf("PollEvents failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	want := fastmodbus.EventRecord{SlaveID: 5, Type: fastmodbus.Discrete, Address: 0, Value: 1, Flag: 1}
	if records[0] != want {
		t.Errorf("records[0] = %+v, want %+v", records[0], want)
	}
	if ack != (fastmodbus.AckState{LastSlaveID: 5, LastFlag: 1}) {
		t.Errorf("ack = %+v", ack)
	}

	records, _, err = m.PollEvents(ctx, ack, 1, 100)
	if err != nil {
		t.Fatalf("PollEvents failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("confirmed events redelivered: %+v", records)
	}
}

func TestReadRegistersAscendingOrder(t *testing.T) {
	bus := &bustest.Bus{}
	dev := bus.Add(bustest.NewDevice(12345, 5))
	want := []uint16{7, 11, 13, 17, 19}
	for i, v := range want {
		dev.Holding[200+uint16(i)] = v
	}

	m := New(bus, Options{})
	values, err := m.ReadRegisters(context.Background(), 12345, fastmodbus.Holding, 200, 5)
	if err != nil {
		t.Fatalf("ReadRegisters failed: %v", err)
	}
	if len(values) != len(want) {
		t.Fatalf("got %d values, want %d", len(values), len(want))
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("values[%d] = %d, want %d", i, values[i], want[i])
		}
	}
}

func TestReadRegistersUnknownDevice(t *testing.T) {
	bus := &bustest.Bus{}
	bus.Add(bustest.NewDevice(12345, 5))

	m := New(bus, Options{})
	if _, err := m.ReadRegisters(context.Background(), 99999, fastmodbus.Holding, 0, 1); err == nil {
		t.Fatal("read from absent device succeeded")
	}
}

func TestScanBusModelReadFailureIsNotFatal(t *testing.T) {
	bus := &bustest.Bus{}
	bus.Add(bustest.NewDevice(12345, 5)) // no model registers populated

	m := New(bus, Options{})
	devices, err := m.ScanBus(context.Background(), true)
	if err != nil {
		t.Fatalf("ScanBus failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("discovered %d devices, want 1", len(devices))
	}
	if devices[0].Model != "" {
		t.Errorf("model = %q, want empty", devices[0].Model)
	}
}

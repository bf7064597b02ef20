// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package scan

import (
	"context"
	"testing"

	"github.com/wirenlab/fastmodbus/internal/bustest"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
)

func serials(devices []Device) map[fastmodbus.SerialNumber]Device {
	m := make(map[fastmodbus.SerialNumber]Device, len(devices))
	for _, d := range devices {
		m[d.Serial] = d
	}
	return m
}

func TestScanCompleteness(t *testing.T) {
	tests := []struct {
		name    string
		serials []fastmodbus.SerialNumber
	}{
		{"EmptyBus", nil},
		{"SingleDevice", []fastmodbus.SerialNumber{12345}},
		{"TwoSpread", []fastmodbus.SerialNumber{0x00000001, 0x80000001}},
		{"Five", []fastmodbus.SerialNumber{1, 2, 3, 0x0000FFFF, 0xFFFF0000}},
		{"AllBitsSet", []fastmodbus.SerialNumber{0xFFFFFFFF, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &bustest.Bus{}
			for i, s := range tt.serials {
				bus.Add(bustest.NewDevice(s, byte(i+1)))
			}

			devices, err := New(bus, Options{}).Scan(context.Background())
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if len(devices) != len(tt.serials) {
				t.Fatalf("found %d devices, want %d: %+v", len(devices), len(tt.serials), devices)
			}
			found := serials(devices)
			for i, s := range tt.serials {
				dev, ok := found[s]
				if !ok {
					t.Errorf("serial %v not discovered", s)
					continue
				}
				if !dev.Confirmed {
					t.Errorf("serial %v not confirmed", s)
				}
				if dev.SlaveID != byte(i+1) {
					t.Errorf("serial %v slave id = %d, want %d", s, dev.SlaveID, i+1)
				}
			}
		})
	}
}

func TestScanCollisionSplitsOnce(t *testing.T) {
	// Serials differing only in the last bit share a 31-bit prefix. The
	// engine must probe that deepest branch exactly once: one collision,
	// one split, then both leaves resolve cleanly.
	const (
		s0 = fastmodbus.SerialNumber(0x00003038)
		s1 = fastmodbus.SerialNumber(0x00003039)
	)
	bus := &bustest.Bus{}
	bus.Add(bustest.NewDevice(s0, 1))
	bus.Add(bustest.NewDevice(s1, 2))

	devices, err := New(bus, Options{}).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	found := serials(devices)
	if len(found) != 2 || !found[s0].Confirmed || !found[s1].Confirmed {
		t.Fatalf("want both devices confirmed, got %+v", devices)
	}

	deepSplits := 0
	for _, rec := range bus.Log {
		if rec.Subcommand == fastmodbus.SubScanProbe && rec.PrefixBits == 31 &&
			rec.Prefix&0xFFFFFFFE == uint32(s0) {
			deepSplits++
		}
	}
	if deepSplits != 1 {
		t.Errorf("the shared 31-bit prefix was probed %d times, want exactly 1", deepSplits)
	}
}

func TestScanUnconfirmedDevice(t *testing.T) {
	const (
		droppy = fastmodbus.SerialNumber(0x80000001)
		steady = fastmodbus.SerialNumber(0x00000001)
	)
	bus := &bustest.Bus{}
	d := bus.Add(bustest.NewDevice(droppy, 7))
	d.DropConfirm = true
	bus.Add(bustest.NewDevice(steady, 3))

	devices, err := New(bus, Options{}).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	found := serials(devices)
	if len(found) != 2 {
		t.Fatalf("found %d devices, want 2: %+v", len(found), devices)
	}
	if !found[steady].Confirmed {
		t.Error("steady device should be confirmed")
	}
	if found[droppy].Confirmed {
		t.Error("device that ignores confirms must be reported unconfirmed")
	}
}

func TestScanRepeatable(t *testing.T) {
	bus := &bustest.Bus{}
	bus.Add(bustest.NewDevice(12345, 1))
	bus.Add(bustest.NewDevice(54321, 2))

	s := New(bus, Options{})
	for run := 0; run < 2; run++ {
		devices, err := s.Scan(context.Background())
		if err != nil {
			t.Fatalf("run %d: Scan failed: %v", run, err)
		}
		if len(devices) != 2 {
			t.Fatalf("run %d: found %d devices, want 2 (init must reset discovery)", run, len(devices))
		}
	}
}

func TestPrefixRangeSplit(t *testing.T) {
	r := prefixRange{}
	zero, one := r.split()
	if zero.bits != 1 || zero.value != 0 {
		t.Errorf("zero child = %+v", zero)
	}
	if one.bits != 1 || one.value != 0x80000000 {
		t.Errorf("one child = %+v, want bit 31 set", one)
	}

	r = prefixRange{bits: 31, value: 0x00003038}
	zero, one = r.split()
	if zero.value != 0x00003038 || one.value != 0x00003039 {
		t.Errorf("deep split = %+v / %+v", zero, one)
	}
}

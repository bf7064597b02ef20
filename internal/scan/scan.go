// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package scan enumerates the serial numbers of every device sharing a
// half-duplex bus. Devices answering a probe simultaneously corrupt each
// other's frames; the corrupted read fails its CRC check, which is the
// signal to narrow the probe by one serial-number bit and try both halves.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport"
)

// serialBits is the width of a device serial number.
const serialBits = 32

// DefaultConfirmRetries bounds confirm re-sends before a discovered
// device is reported unconfirmed.
const DefaultConfirmRetries = 2

// Device is a discovered identity. The caller decides whether to keep it;
// nothing is persisted here.
type Device struct {
	Serial  fastmodbus.SerialNumber
	SlaveID byte
	Model   string

	// Confirmed is false when the device replied to a probe but never
	// acknowledged the confirm within the retry budget. The scan keeps
	// going; the caller gets the identity with degraded confidence.
	Confirmed bool
}

// Options tunes a Scanner.
type Options struct {
	// Function is the extended function code, 0x46 or 0x60.
	Function byte
	// ConfirmRetries overrides DefaultConfirmRetries when positive.
	ConfirmRetries int
}

// Scanner runs the discovery procedure over an exchanger.
type Scanner struct {
	ex      transport.Exchanger
	fn      byte
	retries int
}

// New creates a Scanner.
func New(ex transport.Exchanger, opt Options) *Scanner {
	fn := opt.Function
	if fn == 0 {
		fn = fastmodbus.FuncCodeFastModbus
	}
	retries := opt.ConfirmRetries
	if retries <= 0 {
		retries = DefaultConfirmRetries
	}
	return &Scanner{ex: ex, fn: fn, retries: retries}
}

// prefixRange is one branch of the search: the first bits of the serial
// number are pinned to the most significant bits of value.
type prefixRange struct {
	bits  uint8
	value uint32
}

func (r prefixRange) String() string {
	if r.bits == 0 {
		return "*/0"
	}
	return fmt.Sprintf("%0*b/%d", int(r.bits), r.value>>(serialBits-uint32(r.bits)), r.bits)
}

// split extends the prefix by one bit.
func (r prefixRange) split() (zero, one prefixRange) {
	bit := uint32(1) << (serialBits - 1 - uint32(r.bits))
	zero = prefixRange{bits: r.bits + 1, value: r.value}
	one = prefixRange{bits: r.bits + 1, value: r.value | bit}
	return
}

// Scan discovers every device on the bus. It returns the devices found so
// far even when it fails partway, so a caller can report partial results
// alongside the error.
//
// Termination: a branch is only ever replaced by strictly longer prefixes
// (bounded by 32 bits), by itself after a device was excluded via confirm,
// or by nothing. A device that replies but cannot be excluded is not
// grounds to re-probe, otherwise two such replies would loop forever.
func (s *Scanner) Scan(ctx context.Context) ([]Device, error) {
	// Reset the "already discovered" bit in every device. Nobody answers
	// an init, so a quiet line is the expected outcome.
	initFrame, err := fastmodbus.NewScanInit(s.fn).Encode()
	if err != nil {
		return nil, err
	}
	if _, err := s.ex.Exchange(ctx, initFrame); err != nil && !errors.Is(err, transport.ErrTimeout) {
		return nil, err
	}

	var devices []Device
	seen := make(map[fastmodbus.SerialNumber]bool)
	stack := []prefixRange{{}}

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		probe, err := fastmodbus.NewScanProbe(s.fn, r.bits, r.value).Encode()
		if err != nil {
			return devices, err
		}
		raw, err := s.ex.Exchange(ctx, probe)
		if errors.Is(err, transport.ErrTimeout) {
			// Nobody matched the prefix.
			continue
		}
		if err != nil {
			return devices, err
		}

		frame, err := fastmodbus.Decode(raw)
		if errors.Is(err, fastmodbus.ErrChecksum) {
			// Collision: two or more devices matched and disagree on a
			// later bit. Narrow by one bit and search both halves.
			if r.bits >= serialBits {
				// A full 32-bit prefix names at most one device; garbage
				// here is line noise, not a collision.
				slog.Warn("checksum failure on fully resolved probe", "range", r.String())
				continue
			}
			zero, one := r.split()
			stack = append(stack, one, zero)
			slog.Debug("probe collision", "range", r.String())
			continue
		}
		if err != nil {
			// Structurally broken but CRC-consistent reply: treat like a
			// quiet line rather than aborting the whole scan.
			slog.Warn("malformed probe reply", "range", r.String(), "err", err)
			continue
		}

		reply, end, err := fastmodbus.ParseScanReply(frame, s.fn)
		if err != nil || end {
			continue
		}
		if seen[reply.Serial] {
			// The device already replied once and could not be excluded
			// from the pool. Dropping the branch trades completeness under
			// a misbehaving device for guaranteed termination.
			slog.Warn("device replied again after confirm", "serial", reply.Serial)
			continue
		}
		seen[reply.Serial] = true

		dev := Device{Serial: reply.Serial, SlaveID: reply.SlaveID}
		dev.Confirmed, err = s.confirm(ctx, reply.Serial)
		if err != nil {
			return devices, err
		}
		devices = append(devices, dev)
		slog.Debug("device discovered", "serial", dev.Serial, "slave_id", dev.SlaveID, "confirmed", dev.Confirmed)

		// Other undiscovered devices may share this prefix.
		stack = append(stack, r)
	}
	return devices, nil
}

// confirm excludes a device from further probe replies. A timeout here is
// usually a collision with a device dropping off the bus, so it is worth
// a bounded number of re-sends. The error return is reserved for line
// failures that have to abort the scan.
func (s *Scanner) confirm(ctx context.Context, serial fastmodbus.SerialNumber) (bool, error) {
	request, err := fastmodbus.NewScanConfirm(s.fn, serial).Encode()
	if err != nil {
		return false, err
	}
	for attempt := 0; attempt <= s.retries; attempt++ {
		raw, err := s.ex.Exchange(ctx, request)
		if errors.Is(err, transport.ErrTimeout) {
			continue
		}
		if err != nil {
			return false, err
		}
		frame, err := fastmodbus.Decode(raw)
		if err != nil {
			// Garbled echo; retry within the budget.
			continue
		}
		reply, end, err := fastmodbus.ParseScanReply(frame, s.fn)
		if err != nil || end {
			continue
		}
		if reply.Serial == serial {
			return true, nil
		}
	}
	return false, nil
}

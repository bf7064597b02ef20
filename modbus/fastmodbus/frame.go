// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package fastmodbus

import (
	"errors"
	"fmt"

	"github.com/wirenlab/fastmodbus/modbus/crc"
)

// ErrChecksum reports a CRC mismatch. On a shared half-duplex line this is
// how a collision between simultaneous responders shows up, so callers
// treat it as a routine, recoverable condition.
var ErrChecksum = errors.New("fastmodbus: frame checksum mismatch")

// MalformedFrameError reports a structural decode failure distinct from a
// checksum mismatch.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("fastmodbus: malformed frame: %s", e.Reason)
}

// Frame is one Fast Modbus application data unit:
//
//	Address         : 1 byte (0xFD for broadcast / serial-addressed)
//	Function        : 1 byte (0x46 or 0x60)
//	Subcommand      : 1 byte
//	Payload         : 0 up to 249 bytes
//	CRC             : 2 bytes, low byte first
//
// A Frame is constructed immediately before transmission or reconstructed
// from a CRC-valid read; it is never mutated afterwards.
type Frame struct {
	Address    byte
	Function   byte
	Subcommand byte
	Payload    []byte
}

// Encode serializes the frame and appends the CRC.
func (f *Frame) Encode() ([]byte, error) {
	length := len(f.Payload) + MinSize
	if length > MaxSize {
		return nil, fmt.Errorf("fastmodbus: frame length '%v' must not be bigger than '%v'", length, MaxSize)
	}
	raw := make([]byte, length)

	raw[0] = f.Address
	raw[1] = f.Function
	raw[2] = f.Subcommand
	copy(raw[3:], f.Payload)

	var c crc.CRC
	checksum := c.Reset().PushBytes(raw[0 : length-2]).Value()
	raw[length-2] = byte(checksum)
	raw[length-1] = byte(checksum >> 8)
	return raw, nil
}

// Decode reconstructs a frame from raw bytes. Leading 0xFF bytes are
// stripped first: bus turnaround on RS485 shows up as 0xFF noise before
// the actual response. Decode validates structure and checksum only;
// payload meaning is the command layer's job.
func Decode(raw []byte) (*Frame, error) {
	raw = TrimNoise(raw)
	if len(raw) < MinSize {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("length %d below minimum %d", len(raw), MinSize)}
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[:len(raw)-2])
	checksum := uint16(raw[len(raw)-1])<<8 | uint16(raw[len(raw)-2])
	if checksum != c.Value() {
		return nil, fmt.Errorf("%w: received '0x%04X' expected '0x%04X'", ErrChecksum, checksum, c.Value())
	}

	f := &Frame{
		Address:    raw[0],
		Function:   raw[1],
		Subcommand: raw[2],
	}
	if payload := raw[3 : len(raw)-2]; len(payload) > 0 {
		f.Payload = payload
	}
	return f, nil
}

// TrimNoise drops leading 0xFF bytes left on the line by bus turnaround.
func TrimNoise(raw []byte) []byte {
	for len(raw) > 0 && raw[0] == 0xFF {
		raw = raw[1:]
	}
	return raw
}

// expectReply checks the fixed header of a decoded response against the
// request's function code and the expected subcommand.
func expectReply(f *Frame, function, subcommand byte) error {
	if f.Function != function {
		return &MalformedFrameError{Reason: fmt.Sprintf("function 0x%02X in response, expected 0x%02X", f.Function, function)}
	}
	if f.Subcommand != subcommand {
		return &MalformedFrameError{Reason: fmt.Sprintf("subcommand 0x%02X in response, expected 0x%02X", f.Subcommand, subcommand)}
	}
	return nil
}

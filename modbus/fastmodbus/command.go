// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package fastmodbus

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// SerialNumber is the 32-bit globally unique device identifier used in
// place of a slave id for addressed operations and as the discovery key.
type SerialNumber uint32

func (s SerialNumber) String() string {
	return fmt.Sprintf("%d (0x%08X)", uint32(s), uint32(s))
}

// NewScanInit builds the broadcast that restarts discovery. Devices reset
// their "already discovered" bit and arm for the next probe.
func NewScanInit(function byte) *Frame {
	return &Frame{Address: BroadcastAddr, Function: function, Subcommand: SubScanInit}
}

// NewScanProbe builds the broadcast probe for a serial-number prefix.
// prefixBits counts the significant bits of prefix, most significant
// first; zero bits probes the whole 32-bit space.
func NewScanProbe(function byte, prefixBits uint8, prefix uint32) *Frame {
	payload := make([]byte, 5)
	payload[0] = prefixBits
	binary.BigEndian.PutUint32(payload[1:], prefix)
	return &Frame{Address: BroadcastAddr, Function: function, Subcommand: SubScanProbe, Payload: payload}
}

// NewScanConfirm builds the unicast that marks a device discovered,
// excluding it from further probe replies.
func NewScanConfirm(function byte, serial SerialNumber) *Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(serial))
	return &Frame{Address: BroadcastAddr, Function: function, Subcommand: SubScanConfirm, Payload: payload}
}

// ScanReply is a device's answer to a probe or a confirm: its full
// identity and the slave id currently assigned to it.
type ScanReply struct {
	Serial  SerialNumber
	SlaveID byte
}

// ParseScanReply decodes a scan reply (subcommand 0x03 after a probe,
// 0x05 after a confirm). A scan-end frame (0x04) is reported as
// (nil, true, nil): the device pool for this branch is exhausted.
func ParseScanReply(f *Frame, function byte) (reply *ScanReply, end bool, err error) {
	if f.Function != function {
		return nil, false, &MalformedFrameError{Reason: fmt.Sprintf("function 0x%02X in scan reply, expected 0x%02X", f.Function, function)}
	}
	switch f.Subcommand {
	case SubScanEnd:
		return nil, true, nil
	case SubScanReply, SubScanConfirm:
		if len(f.Payload) < 5 {
			return nil, false, &MalformedFrameError{Reason: fmt.Sprintf("scan reply payload %d bytes, need 5", len(f.Payload))}
		}
		return &ScanReply{
			Serial:  SerialNumber(binary.BigEndian.Uint32(f.Payload[:4])),
			SlaveID: f.Payload[4],
		}, false, nil
	}
	return nil, false, &MalformedFrameError{Reason: fmt.Sprintf("unexpected scan subcommand 0x%02X", f.Subcommand)}
}

// NewReadRegisters builds a serial-number addressed read of count
// registers starting at start.
func NewReadRegisters(function byte, serial SerialNumber, regType RegisterType, start, count uint16) *Frame {
	payload := make([]byte, 9)
	binary.BigEndian.PutUint32(payload[0:], uint32(serial))
	payload[4] = regType.ReadFuncCode()
	binary.BigEndian.PutUint16(payload[5:], start)
	binary.BigEndian.PutUint16(payload[7:], count)
	return &Frame{Address: BroadcastAddr, Function: function, Subcommand: SubAddressed, Payload: payload}
}

// ParseReadResponse decodes the response to NewReadRegisters and returns
// the register values in ascending address order. Bit tables come back
// packed eight per byte and are unpacked to 0/1 values.
func ParseReadResponse(f *Frame, function byte, serial SerialNumber, regType RegisterType, count uint16) ([]uint16, error) {
	if err := expectReply(f, function, SubAddressed); err != nil {
		return nil, err
	}
	if len(f.Payload) < 6 {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("read response payload %d bytes, need at least 6", len(f.Payload))}
	}
	if got := SerialNumber(binary.BigEndian.Uint32(f.Payload[:4])); got != serial {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("response serial %v does not match request %v", got, serial)}
	}
	if f.Payload[4] != regType.ReadFuncCode() {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("response function code 0x%02X, expected 0x%02X", f.Payload[4], regType.ReadFuncCode())}
	}

	byteCount := int(f.Payload[5])
	data := f.Payload[6:]
	if len(data) != byteCount {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("declared %d data bytes, got %d", byteCount, len(data))}
	}

	values := make([]uint16, count)
	if regType.Bit() {
		need := (int(count) + 7) / 8
		if byteCount < need {
			return nil, &MalformedFrameError{Reason: fmt.Sprintf("%d bit-packed bytes cannot hold %d values", byteCount, count)}
		}
		for i := range values {
			if data[i/8]&(1<<(i%8)) != 0 {
				values[i] = 1
			}
		}
		return values, nil
	}
	if byteCount != int(count)*2 {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("%d data bytes for %d registers", byteCount, count)}
	}
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return values, nil
}

// NewWriteRegisters builds a serial-number addressed multi-register write.
func NewWriteRegisters(function byte, serial SerialNumber, start uint16, values []uint16) *Frame {
	payload := make([]byte, 10+len(values)*2)
	binary.BigEndian.PutUint32(payload[0:], uint32(serial))
	payload[4] = FuncCodeWriteMultipleRegister
	binary.BigEndian.PutUint16(payload[5:], start)
	binary.BigEndian.PutUint16(payload[7:], uint16(len(values)))
	payload[9] = byte(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[10+i*2:], v)
	}
	return &Frame{Address: BroadcastAddr, Function: function, Subcommand: SubAddressed, Payload: payload}
}

// ParseWriteResponse validates the echo to NewWriteRegisters.
func ParseWriteResponse(f *Frame, function byte, serial SerialNumber, start uint16, count uint16) error {
	if err := expectReply(f, function, SubAddressed); err != nil {
		return err
	}
	if len(f.Payload) < 9 {
		return &MalformedFrameError{Reason: fmt.Sprintf("write response payload %d bytes, need 9", len(f.Payload))}
	}
	if got := SerialNumber(binary.BigEndian.Uint32(f.Payload[:4])); got != serial {
		return &MalformedFrameError{Reason: fmt.Sprintf("response serial %v does not match request %v", got, serial)}
	}
	if f.Payload[4] != FuncCodeWriteMultipleRegister {
		return &MalformedFrameError{Reason: fmt.Sprintf("response function code 0x%02X, expected 0x%02X", f.Payload[4], FuncCodeWriteMultipleRegister)}
	}
	if got := binary.BigEndian.Uint16(f.Payload[5:]); got != start {
		return &MalformedFrameError{Reason: fmt.Sprintf("response start address %d, expected %d", got, start)}
	}
	if got := binary.BigEndian.Uint16(f.Payload[7:]); got != count {
		return &MalformedFrameError{Reason: fmt.Sprintf("response register count %d, expected %d", got, count)}
	}
	return nil
}

// DecodeModel turns the raw values of the model registers into the
// device model string. Each register carries one ASCII character.
func DecodeModel(values []uint16) string {
	b := make([]byte, 0, len(values))
	for _, v := range values {
		if v == 0 {
			break
		}
		b = append(b, byte(v))
	}
	return strings.TrimSpace(string(b))
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package fastmodbus

import (
	"bytes"
	"testing"
)

func TestNewReadRegistersWire(t *testing.T) {
	// FD 46 08 <serial:4> <func> <start:2> <count:2>
	f := NewReadRegisters(FuncCodeFastModbus, 12345, Holding, 200, 5)
	raw, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFD, 0x46, 0x08, 0x00, 0x00, 0x30, 0x39, 0x03, 0x00, 0xC8, 0x00, 0x05}
	if !bytes.Equal(raw[:len(raw)-2], want) {
		t.Errorf("request mismatch.\nWant: % X\nGot:  % X", want, raw[:len(raw)-2])
	}
}

func TestParseReadResponse(t *testing.T) {
	t.Run("Registers", func(t *testing.T) {
		payload := []byte{0x00, 0x00, 0x30, 0x39, 0x03, 0x0A,
			0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00, 0x05}
		f := &Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubAddressed, Payload: payload}

		values, err := ParseReadResponse(f, FuncCodeFastModbus, 12345, Holding, 5)
		if err != nil {
			t.Fatalf("ParseReadResponse failed: %v", err)
		}
		for i, v := range values {
			if v != uint16(i+1) {
				t.Errorf("values[%d] = %d, want %d", i, v, i+1)
			}
		}
	})

	t.Run("Bits", func(t *testing.T) {
		// 10 discrete inputs packed into 2 bytes: 1,0,1,0,0,0,0,0 | 1,1
		payload := []byte{0x00, 0x00, 0x30, 0x39, 0x02, 0x02, 0x05, 0x03}
		f := &Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubAddressed, Payload: payload}

		values, err := ParseReadResponse(f, FuncCodeFastModbus, 12345, Discrete, 10)
		if err != nil {
			t.Fatalf("ParseReadResponse failed: %v", err)
		}
		want := []uint16{1, 0, 1, 0, 0, 0, 0, 0, 1, 1}
		for i := range want {
			if values[i] != want[i] {
				t.Errorf("values[%d] = %d, want %d", i, values[i], want[i])
			}
		}
	})

	t.Run("WrongSerial", func(t *testing.T) {
		payload := []byte{0x00, 0x00, 0x00, 0x01, 0x03, 0x02, 0x00, 0x01}
		f := &Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubAddressed, Payload: payload}
		if _, err := ParseReadResponse(f, FuncCodeFastModbus, 12345, Holding, 1); err == nil {
			t.Fatal("accepted response for a different serial number")
		}
	})

	t.Run("ShortData", func(t *testing.T) {
		payload := []byte{0x00, 0x00, 0x30, 0x39, 0x03, 0x04, 0x00, 0x01}
		f := &Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubAddressed, Payload: payload}
		if _, err := ParseReadResponse(f, FuncCodeFastModbus, 12345, Holding, 2); err == nil {
			t.Fatal("accepted truncated data")
		}
	})
}

func TestWriteRegistersRoundTrip(t *testing.T) {
	f := NewWriteRegisters(FuncCodeFastModbus, 12345, 100, []uint16{0xAABB, 0xCCDD})
	raw, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFD, 0x46, 0x08, 0x00, 0x00, 0x30, 0x39, 0x10,
		0x00, 0x64, 0x00, 0x02, 0x04, 0xAA, 0xBB, 0xCC, 0xDD}
	if !bytes.Equal(raw[:len(raw)-2], want) {
		t.Errorf("request mismatch.\nWant: % X\nGot:  % X", want, raw[:len(raw)-2])
	}

	echo := &Frame{
		Address:    BroadcastAddr,
		Function:   FuncCodeFastModbus,
		Subcommand: SubAddressed,
		Payload:    []byte{0x00, 0x00, 0x30, 0x39, 0x10, 0x00, 0x64, 0x00, 0x02},
	}
	if err := ParseWriteResponse(echo, FuncCodeFastModbus, 12345, 100, 2); err != nil {
		t.Fatalf("ParseWriteResponse failed: %v", err)
	}

	bad := &Frame{
		Address:    BroadcastAddr,
		Function:   FuncCodeFastModbus,
		Subcommand: SubAddressed,
		Payload:    []byte{0x00, 0x00, 0x30, 0x39, 0x10, 0x00, 0x64, 0x00, 0x01},
	}
	if err := ParseWriteResponse(bad, FuncCodeFastModbus, 12345, 100, 2); err == nil {
		t.Fatal("accepted echo with wrong register count")
	}
}

func TestParseScanReply(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		serial  SerialNumber
		slaveID byte
		end     bool
		wantErr bool
	}{
		{
			name:    "Reply",
			frame:   Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubScanReply, Payload: []byte{0x00, 0x00, 0x30, 0x39, 0x05}},
			serial:  12345,
			slaveID: 5,
		},
		{
			name:    "ConfirmEcho",
			frame:   Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubScanConfirm, Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}},
			serial:  0xDEADBEEF,
			slaveID: 1,
		},
		{
			name:  "ScanEnd",
			frame: Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubScanEnd},
			end:   true,
		},
		{
			name:    "ShortPayload",
			frame:   Frame{Address: BroadcastAddr, Function: FuncCodeFastModbus, Subcommand: SubScanReply, Payload: []byte{0x01}},
			wantErr: true,
		},
		{
			name:    "WrongFunction",
			frame:   Frame{Address: BroadcastAddr, Function: FuncCodeFastModbusOld, Subcommand: SubScanReply, Payload: []byte{0x00, 0x00, 0x30, 0x39, 0x05}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, end, err := ParseScanReply(&tt.frame, FuncCodeFastModbus)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScanReply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if end != tt.end {
				t.Fatalf("end = %v, want %v", end, tt.end)
			}
			if end {
				return
			}
			if reply.Serial != tt.serial || reply.SlaveID != tt.slaveID {
				t.Errorf("reply = %+v, want serial %v slave %d", reply, tt.serial, tt.slaveID)
			}
		})
	}
}

func TestDecodeModel(t *testing.T) {
	values := []uint16{'W', 'B', 'M', 'R', '6', 'C', 0, 0, 0, 0}
	if got := DecodeModel(values); got != "WBMR6C" {
		t.Errorf("DecodeModel = %q, want %q", got, "WBMR6C")
	}
	if got := DecodeModel(nil); got != "" {
		t.Errorf("DecodeModel(nil) = %q, want empty", got)
	}
}

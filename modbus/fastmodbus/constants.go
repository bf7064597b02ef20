// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package fastmodbus

const (
	// MinSize is address + function + subcommand + CRC.
	MinSize = 5
	MaxSize = 256
)

// BroadcastAddr is the address byte used for broadcast and
// serial-number-addressed commands. Directly addressed slaves use 1..247.
const BroadcastAddr = 0xFD

// Extended function codes. Older firmware answers on 0x60, current on 0x46.
const (
	FuncCodeFastModbus    = 0x46
	FuncCodeFastModbusOld = 0x60
)

// Subcommands of the extended function.
const (
	SubScanInit    = 0x01
	SubScanProbe   = 0x02
	SubScanReply   = 0x03
	SubScanEnd     = 0x04
	SubScanConfirm = 0x05

	SubAddressed = 0x08

	SubEventRequest  = 0x10
	SubEventResponse = 0x11
	SubNoEvents      = 0x12

	SubEventConfig = 0x18
)

// Standard Modbus function codes carried inside the addressed subcommand.
const (
	FuncCodeReadCoils             = 0x01
	FuncCodeReadDiscreteInputs    = 0x02
	FuncCodeReadHoldingRegisters  = 0x03
	FuncCodeReadInputRegisters    = 0x04
	FuncCodeWriteMultipleRegister = 0x10
)

// RegisterType identifies one of the four Modbus register tables.
type RegisterType byte

const (
	Coil     RegisterType = 0x01
	Discrete RegisterType = 0x02
	Holding  RegisterType = 0x03
	Input    RegisterType = 0x04
)

func (t RegisterType) String() string {
	switch t {
	case Coil:
		return "coil"
	case Discrete:
		return "discrete"
	case Holding:
		return "holding"
	case Input:
		return "input"
	}
	return "unknown"
}

// ReadFuncCode returns the standard read function code for the table.
func (t RegisterType) ReadFuncCode() byte {
	// Table codes are chosen to coincide with the read function codes.
	return byte(t)
}

// Bit reports whether the table holds single-bit values.
func (t RegisterType) Bit() bool {
	return t == Coil || t == Discrete
}

// Valid reports whether t is one of the four known tables.
func (t RegisterType) Valid() bool {
	return t >= Coil && t <= Input
}

// Model registers: every device exposes its model string in holding
// registers 200..219, one ASCII character per register.
const (
	ModelRegisterStart = 200
	ModelRegisterCount = 20
)

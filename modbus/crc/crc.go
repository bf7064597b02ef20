// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import "sync"

const polynomial = 0xA001

var table struct {
	once sync.Once
	data [256]uint16
}

func initTable() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
		}
		table.data[i] = crc
	}
}

// CRC computes the Modbus RTU CRC16 incrementally.
// The zero value is not ready for use; call Reset first.
type CRC struct {
	crc uint16
}

// Reset initializes the checksum to 0xFFFF.
func (c *CRC) Reset() *CRC {
	table.once.Do(initTable)
	c.crc = 0xFFFF
	return c
}

// PushByte updates the checksum with a single byte.
func (c *CRC) PushByte(b byte) *CRC {
	c.crc = (c.crc >> 8) ^ table.data[byte(c.crc)^b]
	return c
}

// PushBytes updates the checksum with a slice of bytes.
func (c *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		c.PushByte(b)
	}
	return c
}

// Value returns the current checksum. On the wire the low byte
// is transmitted first.
func (c *CRC) Value() uint16 {
	return c.crc
}

// Checksum computes the CRC16 of bs in one call.
func Checksum(bs []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(bs).Value()
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
)

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <serial> <coil|discrete|holding|input> <start> <count>",
		Short: "Read registers from a device addressed by serial number",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			serial, err := parseSerial(args[0])
			if err != nil {
				return err
			}
			regType, err := fastmodbus.ParseRegisterType(args[1])
			if err != nil {
				return err
			}
			start, err := parseUint16(args[2], "start address")
			if err != nil {
				return err
			}
			count, err := parseUint16(args[3], "count")
			if err != nil {
				return err
			}

			m, closePort, err := newMaster()
			if err != nil {
				return err
			}
			defer closePort()

			values, err := m.ReadRegisters(cmd.Context(), serial, regType, start, count)
			if err != nil {
				return err
			}
			for i, v := range values {
				if regType.Bit() {
					fmt.Printf("%s %d: %d\n", regType, start+uint16(i), v)
				} else {
					fmt.Printf("%s %d: %d (0x%04X)\n", regType, start+uint16(i), v, v)
				}
			}
			return nil
		},
	}
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <serial> <start> <value>...",
		Short: "Write holding registers of a device addressed by serial number",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			serial, err := parseSerial(args[0])
			if err != nil {
				return err
			}
			start, err := parseUint16(args[1], "start address")
			if err != nil {
				return err
			}
			values := make([]uint16, 0, len(args)-2)
			for _, a := range args[2:] {
				v, err := parseUint16(a, "value")
				if err != nil {
					return err
				}
				values = append(values, v)
			}

			m, closePort, err := newMaster()
			if err != nil {
				return err
			}
			defer closePort()

			if err := m.WriteRegisters(cmd.Context(), serial, start, values); err != nil {
				return err
			}
			fmt.Printf("wrote %d register(s) at %d to %s\n", len(values), start, serial)
			return nil
		},
	}
}

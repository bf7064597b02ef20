// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var models bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover every device on the bus",
		Long: `Scan enumerates all devices by serial number, including devices that
share a slave id or have none assigned yet. With --models each device's
model string is read after discovery.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closePort, err := newMaster()
			if err != nil {
				return err
			}
			defer closePort()

			devices, err := m.ScanBus(cmd.Context(), models)
			if len(devices) > 0 {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SERIAL\tSLAVE ID\tMODEL\tCONFIRMED")
				for _, d := range devices {
					fmt.Fprintf(w, "%s\t%d\t%s\t%v\n", d.Serial, d.SlaveID, d.Model, d.Confirmed)
				}
				w.Flush()
			}
			if err != nil {
				return fmt.Errorf("scan aborted after %d devices: %w", len(devices), err)
			}
			fmt.Printf("%d device(s) found\n", len(devices))
			return nil
		},
	}

	cmd.Flags().BoolVar(&models, "models", false, "read each device's model string")
	return cmd
}

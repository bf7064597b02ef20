// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wirenlab/fastmodbus/internal/ackstore"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
)

func newConfigEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-events <slave-id> <type:address:count:priority>[,...]",
		Short: "Enable change notifications on a device",
		Long: `Config-events sends one configuration set to a device, addressed by its
regular slave id. Priority 0 disables notifications for the range. The
device answers per record; a partially accepted set is reported, not
retried.

Example:
  fastmodbus config-events 5 discrete:0:2:1,holding:5:2:2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slaveID, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid slave id %q", args[0])
			}
			configs, err := fastmodbus.ParseEventConfigs(args[1])
			if err != nil {
				return err
			}

			m, closePort, err := newMaster()
			if err != nil {
				return err
			}
			defer closePort()

			acks, err := m.ConfigureEvents(cmd.Context(), byte(slaveID), configs)
			if err != nil {
				return err
			}
			rejected := 0
			for i, a := range acks {
				verdict := "accepted"
				if !a.Accepted {
					verdict = fmt.Sprintf("rejected (code 0x%02X)", a.Code)
					rejected++
				}
				fmt.Printf("%s: %s\n", configs[i], verdict)
			}
			if rejected > 0 {
				return fmt.Errorf("%d of %d record(s) rejected", rejected, len(acks))
			}
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	var (
		minSlave uint8
		maxLen   uint8
		follow   bool
		interval time.Duration
		ackFile  string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Poll devices for pending register change events",
		Long: `Events performs one poll exchange, or a continuous loop with --follow.
Each delivered batch is confirmed by the next request, so an event is
never lost between the device and this tool. With --ack-file the
confirmation cursor survives restarts and the last unconfirmed batch is
redelivered instead of dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var store ackstore.Store
			if ackFile != "" {
				s, err := ackstore.OpenMmapStore(ackFile)
				if err != nil {
					return err
				}
				store = s
			} else {
				store = ackstore.NewMemoryStore()
			}
			defer store.Close()

			m, closePort, err := newMaster()
			if err != nil {
				return err
			}
			defer closePort()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ack, err := store.Load()
			if err != nil {
				return err
			}

			for {
				records, newAck, err := m.PollEvents(ctx, ack, minSlave, maxLen)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					if !follow {
						return err
					}
					slog.Error("poll failed", "err", err)
				}
				for _, r := range records {
					fmt.Printf("slave %d: %s %d = %d\n", r.SlaveID, r.Type, r.Address, r.Value)
				}
				if newAck != ack {
					// Record the cursor before it confirms the batch on the
					// wire, otherwise a crash here would drop the batch.
					if err := store.Save(newAck); err != nil {
						return err
					}
					ack = newAck
				}
				if !follow && len(records) == 0 {
					return nil
				}
				if len(records) > 0 {
					// Drain the remaining backlog without delay.
					continue
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().Uint8Var(&minSlave, "min-slave", 1, "lowest slave id to poll")
	cmd.Flags().Uint8Var(&maxLen, "max-data-len", 100, "largest event payload a device may send")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "pause between idle polls with --follow")
	cmd.Flags().StringVar(&ackFile, "ack-file", "", "persist the confirmation cursor in this file")
	return cmd
}

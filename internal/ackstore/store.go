// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ackstore persists the event acknowledgment cursor across
// process restarts. Losing the cursor is safe but wasteful: the next
// poll redelivers the last unconfirmed batch.
package ackstore

import "github.com/wirenlab/fastmodbus/modbus/fastmodbus"

// Store defines the interface for persisting the acknowledgment cursor.
type Store interface {
	// Load loads the last saved cursor. A store with no saved cursor
	// returns the zero cursor and no error.
	Load() (fastmodbus.AckState, error)

	// Save records the cursor durably before the caller confirms the
	// batch on the wire.
	Save(ack fastmodbus.AckState) error

	// Close releases the backing resources.
	Close() error
}

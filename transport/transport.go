// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
)

// ErrTimeout reports that no reply arrived within the receive window.
// During a bus scan or an event poll this means "nobody matched" or
// "no pending events"; elsewhere it is surfaced to the caller, retry
// policy included.
var ErrTimeout = errors.New("transport: no reply within timeout")

// Exchanger performs one transmit-then-receive exchange over a shared
// half-duplex line. Implementations serialize concurrent calls: a second
// request must not go out while a response is outstanding, otherwise bus
// collisions stop being attributable to a single probe.
//
// The returned bytes are the raw frame as read from the line, line noise
// included; decoding and CRC validation happen in the codec layer so
// that collisions surface as checksum errors, not transport errors.
type Exchanger interface {
	Exchange(ctx context.Context, request []byte) ([]byte, error)
}

// Connector manages the underlying line.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package events

import (
	"context"
	"errors"

	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport"
)

// Consumer drains pending events one exchange at a time. It holds no
// state of its own: the acknowledgment cursor lives with the caller and
// is threaded through every call, so recovery after a crash is just
// re-supplying the last cursor that was safely recorded. Replaying a
// stale cursor redelivers events; delivery is at-least-once and callers
// dedupe by slave id, address and flag if they need exactly-once.
type Consumer struct {
	ex transport.Exchanger
	fn byte
}

// NewConsumer creates a Consumer speaking the given extended function code.
func NewConsumer(ex transport.Exchanger, function byte) *Consumer {
	if function == 0 {
		function = fastmodbus.FuncCodeFastModbus
	}
	return &Consumer{ex: ex, fn: function}
}

// Poll performs one request/response exchange. An empty batch with a nil
// error means no device had pending events; a quiet line counts as that,
// not as a failure. The returned cursor confirms this batch on the next
// call and is unchanged when the batch is empty.
func (c *Consumer) Poll(ctx context.Context, ack fastmodbus.AckState, minSlaveID, maxDataLength byte) ([]fastmodbus.EventRecord, fastmodbus.AckState, error) {
	request, err := fastmodbus.NewEventRequest(c.fn, minSlaveID, maxDataLength, ack).Encode()
	if err != nil {
		return nil, ack, err
	}
	raw, err := c.ex.Exchange(ctx, request)
	if errors.Is(err, transport.ErrTimeout) {
		return nil, ack, nil
	}
	if err != nil {
		return nil, ack, err
	}
	frame, err := fastmodbus.Decode(raw)
	if err != nil {
		return nil, ack, err
	}
	records, err := fastmodbus.ParseEventResponse(frame, c.fn)
	if err != nil {
		return nil, ack, err
	}
	if len(records) == 0 {
		return nil, ack, nil
	}
	last := records[len(records)-1]
	return records, fastmodbus.AckState{LastSlaveID: last.SlaveID, LastFlag: last.Flag}, nil
}

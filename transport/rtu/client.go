// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/wirenlab/fastmodbus/internal/config"
	"github.com/wirenlab/fastmodbus/transport"
)

// maxFrameSize is the largest frame the line can carry.
const maxFrameSize = 256

// Client implements transport.Exchanger over a serial line (Fast Modbus
// master). One exchange at a time: the line is half duplex and a collision
// must stay attributable to the probe that caused it.
type Client struct {
	serialTransporter
}

// NewClient allocates and initializes a Client for the given serial settings.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}

	client.serialPort.Config.Address = cfg.Device
	client.serialPort.Config.BaudRate = cfg.BaudRate
	client.serialPort.Config.DataBits = cfg.DataBits
	client.serialPort.Config.StopBits = cfg.StopBits
	client.serialPort.Config.Parity = cfg.Parity
	client.serialPort.Config.Timeout = cfg.Timeout
	if cfg.RS485 {
		client.serialPort.Config.RS485.Enabled = true
		client.serialPort.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		client.serialPort.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		client.serialPort.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		client.serialPort.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		client.serialPort.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}
	if client.serialPort.Config.Timeout == 0 {
		client.serialPort.Config.Timeout = serialTimeout
	}

	client.IdleTimeout = serialIdleTimeout
	return client
}

// serialTransporter implements the underlying serial comms.
type serialTransporter struct {
	serialPort
}

// Exchange writes one request frame and reads back whatever the bus
// answers, raw. CRC validation is left to the codec so that collisions
// surface there as checksum errors.
func (mb *serialTransporter) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		return nil, err
	}
	mb.lastActivity = time.Now()
	mb.startCloseTimer()

	slog.Debug("SND", "frame", hex.EncodeToString(request))
	if _, err := mb.port.Write(request); err != nil {
		return nil, err
	}

	// Inter-frame silence before listening for the reply.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(mb.frameDelay(len(request))):
	}

	response, err := mb.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("RCV", "frame", hex.EncodeToString(response))
	return response, nil
}

// readFrame accumulates reply bytes until the line goes quiet or the
// frame buffer fills. A Fast Modbus response length is not derivable
// from a fixed header the way a standard RTU response is, and a scan
// collision arrives as superimposed garbage that must be captured, not
// rejected mid-read. The port's configured timeout bounds each blocking
// read, so a silent bus returns within one timeout window.
func (mb *serialTransporter) readFrame(ctx context.Context) ([]byte, error) {
	buf := make([]byte, maxFrameSize)
	var response []byte
	for len(response) < maxFrameSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		n, err := mb.port.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)
		}
		if n == 0 || err != nil {
			// Quiet line: end of frame, or no reply at all.
			break
		}
	}
	if len(response) == 0 {
		return nil, transport.ErrTimeout
	}
	return response, nil
}

// frameDelay calculates the silence needed to separate frames on the line.
func (mb *serialTransporter) frameDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/wirenlab/fastmodbus/internal/config"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport"
)

// mockPort feeds a canned response in chunks and records writes.
type mockPort struct {
	wr     bytes.Buffer
	chunks [][]byte
}

func (m *mockPort) Write(p []byte) (int, error) {
	return m.wr.Write(p)
}

func (m *mockPort) Read(p []byte) (int, error) {
	if len(m.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, m.chunks[0])
	m.chunks[0] = m.chunks[0][n:]
	if len(m.chunks[0]) == 0 {
		m.chunks = m.chunks[1:]
	}
	return n, nil
}

func (m *mockPort) Close() error { return nil }

func newTestClient(mock *mockPort) *Client {
	client := NewClient(config.SerialConfig{})
	// Pre-set port so connect skips serial.Open.
	client.serialTransporter.port = mock
	client.Config.Timeout = 100 * time.Millisecond
	return client
}

func TestClient_Exchange(t *testing.T) {
	request, err := fastmodbus.NewScanInit(fastmodbus.FuncCodeFastModbus).Encode()
	if err != nil {
		t.Fatal(err)
	}
	reply, err := (&fastmodbus.Frame{
		Address:    fastmodbus.BroadcastAddr,
		Function:   fastmodbus.FuncCodeFastModbus,
		Subcommand: fastmodbus.SubScanReply,
		Payload:    []byte{0x00, 0x00, 0x30, 0x39, 0x05},
	}).Encode()
	if err != nil {
		t.Fatal(err)
	}

	// Response arrives fragmented, as a serial driver would deliver it.
	mock := &mockPort{chunks: [][]byte{reply[:3], reply[3:]}}
	client := newTestClient(mock)

	response, err := client.Exchange(context.Background(), request)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if !bytes.Equal(mock.wr.Bytes(), request) {
		t.Errorf("request mismatch.\nWant: %X\nGot:  %X", request, mock.wr.Bytes())
	}
	if !bytes.Equal(response, reply) {
		t.Errorf("response mismatch.\nWant: %X\nGot:  %X", reply, response)
	}

	// The raw response must decode cleanly at the codec layer.
	if _, err := fastmodbus.Decode(response); err != nil {
		t.Errorf("response does not decode: %v", err)
	}
}

func TestClient_ExchangeNoReply(t *testing.T) {
	client := newTestClient(&mockPort{})

	_, err := client.Exchange(context.Background(), []byte{0xFD, 0x46, 0x01, 0x00, 0x00})
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("want transport.ErrTimeout, got %v", err)
	}
}

func TestClient_ExchangeContextCanceled(t *testing.T) {
	client := newTestClient(&mockPort{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Exchange(ctx, []byte{0xFD, 0x46, 0x01, 0x00, 0x00})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

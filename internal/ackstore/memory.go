// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ackstore

import "github.com/wirenlab/fastmodbus/modbus/fastmodbus"

// MemoryStore keeps the cursor in process memory only (non-persistent).
type MemoryStore struct {
	ack fastmodbus.AckState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) Load() (fastmodbus.AckState, error) {
	return ms.ack, nil
}

func (ms *MemoryStore) Save(ack fastmodbus.AckState) error {
	ms.ack = ack
	return nil
}

func (ms *MemoryStore) Close() error {
	return nil
}

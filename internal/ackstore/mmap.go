// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ackstore

import (
	"bytes"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
)

// File layout, 8 bytes total:
// - Magic "FMAC" (Offset 0)
// - Version (Offset 4)
// - LastSlaveID (Offset 5)
// - LastFlag (Offset 6)
// - Reserved (Offset 7)
const (
	fileSize = 8

	offMagic   = 0
	offVersion = 4
	offSlaveID = 5
	offFlag    = 6

	version = 1
)

var magic = []byte("FMAC")

// MmapStore persists the cursor in a memory-mapped file. The file is a
// fixed 8 bytes, so every Save is a single page flush.
type MmapStore struct {
	path string
	file *os.File
	data mmap.MMap
}

// OpenMmapStore opens or creates the cursor file at path.
func OpenMmapStore(path string) (*MmapStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ack file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	fresh := fi.Size() == 0
	if fi.Size() != fileSize {
		if err := f.Truncate(fileSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize ack file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	ms := &MmapStore{path: path, file: f, data: data}
	if fresh {
		copy(data[offMagic:], magic)
		data[offVersion] = version
		if err := data.Flush(); err != nil {
			ms.Close()
			return nil, err
		}
	} else if !bytes.Equal(data[offMagic:offMagic+len(magic)], magic) || data[offVersion] != version {
		ms.Close()
		return nil, fmt.Errorf("%s is not an ack cursor file", path)
	}
	return ms, nil
}

func (ms *MmapStore) Load() (fastmodbus.AckState, error) {
	if ms.data == nil {
		return fastmodbus.AckState{}, fmt.Errorf("ack store is closed")
	}
	return fastmodbus.AckState{
		LastSlaveID: ms.data[offSlaveID],
		LastFlag:    ms.data[offFlag],
	}, nil
}

func (ms *MmapStore) Save(ack fastmodbus.AckState) error {
	if ms.data == nil {
		return fmt.Errorf("ack store is closed")
	}
	ms.data[offSlaveID] = ack.LastSlaveID
	ms.data[offFlag] = ack.LastFlag
	return ms.data.Flush()
}

// Close unmaps and closes the file.
func (ms *MmapStore) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package bustest simulates a shared half-duplex bus of Fast Modbus
// devices for tests. Simultaneous replies are superimposed the way an
// open-collector line would: byte-wise AND, with absent transmitters
// contributing all-ones. The result of a real collision fails its CRC
// check, which is exactly the signal the scan engine keys on.
package bustest

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/wirenlab/fastmodbus/modbus/fastmodbus"
	"github.com/wirenlab/fastmodbus/transport"
)

type event struct {
	regType fastmodbus.RegisterType
	address uint16
	value   uint16
}

// Device is one simulated bus participant.
type Device struct {
	Serial  fastmodbus.SerialNumber
	SlaveID byte
	Model   string

	// DropConfirm makes the device ignore scan confirms, as if it fell
	// off the bus between probe and confirm.
	DropConfirm bool

	Holding  map[uint16]uint16
	Input    map[uint16]uint16
	Coils    map[uint16]uint16
	Discrete map[uint16]uint16

	discovered bool
	configs    []fastmodbus.EventConfig

	queue    []event
	inFlight int  // queue entries delivered but not yet confirmed
	sentFlag byte // flag of the in-flight delivery
	nextFlag byte
}

// NewDevice creates a device with empty register tables.
func NewDevice(serial fastmodbus.SerialNumber, slaveID byte) *Device {
	return &Device{
		Serial:   serial,
		SlaveID:  slaveID,
		Holding:  make(map[uint16]uint16),
		Input:    make(map[uint16]uint16),
		Coils:    make(map[uint16]uint16),
		Discrete: make(map[uint16]uint16),
		nextFlag: 1,
	}
}

func (d *Device) table(t fastmodbus.RegisterType) map[uint16]uint16 {
	switch t {
	case fastmodbus.Coil:
		return d.Coils
	case fastmodbus.Discrete:
		return d.Discrete
	case fastmodbus.Holding:
		return d.Holding
	case fastmodbus.Input:
		return d.Input
	}
	return nil
}

// Trigger applies a register change and queues the notification if an
// accepted event configuration covers the register.
func (d *Device) Trigger(t fastmodbus.RegisterType, address, value uint16) {
	if tab := d.table(t); tab != nil {
		tab[address] = value
	}
	for _, c := range d.configs {
		if c.Type == t && c.Priority > 0 &&
			address >= c.Address && address < c.Address+c.Count {
			d.queue = append(d.queue, event{regType: t, address: address, value: value})
			return
		}
	}
}

func (d *Device) matchesPrefix(bits uint8, prefix uint32) bool {
	if bits == 0 {
		return true
	}
	mask := ^uint32(0) << (32 - uint32(bits))
	return uint32(d.Serial)&mask == prefix&mask
}

// ExchangeRecord is one request seen by the bus, for assertions on probe
// behavior.
type ExchangeRecord struct {
	Subcommand byte
	PrefixBits uint8
	Prefix     uint32
}

// Bus implements transport.Exchanger over a set of simulated devices.
type Bus struct {
	Devices []*Device

	// Log records every request in arrival order.
	Log []ExchangeRecord
}

// Add puts a device on the bus.
func (b *Bus) Add(d *Device) *Device {
	b.Devices = append(b.Devices, d)
	return d
}

func (b *Bus) find(serial fastmodbus.SerialNumber) *Device {
	for _, d := range b.Devices {
		if d.Serial == serial {
			return d
		}
	}
	return nil
}

// Exchange dispatches one request frame to the simulated devices.
func (b *Bus) Exchange(_ context.Context, request []byte) ([]byte, error) {
	f, err := fastmodbus.Decode(request)
	if err != nil {
		return nil, err
	}

	rec := ExchangeRecord{Subcommand: f.Subcommand}
	if f.Subcommand == fastmodbus.SubScanProbe && len(f.Payload) == 5 {
		rec.PrefixBits = f.Payload[0]
		rec.Prefix = binary.BigEndian.Uint32(f.Payload[1:])
	}
	b.Log = append(b.Log, rec)

	switch f.Subcommand {
	case fastmodbus.SubScanInit:
		for _, d := range b.Devices {
			d.discovered = false
		}
		return nil, transport.ErrTimeout
	case fastmodbus.SubScanProbe:
		return b.probe(f)
	case fastmodbus.SubScanConfirm:
		return b.confirm(f)
	case fastmodbus.SubAddressed:
		return b.addressed(f)
	case fastmodbus.SubEventRequest:
		return b.events(f)
	case fastmodbus.SubEventConfig:
		return b.configure(f)
	}
	return nil, transport.ErrTimeout
}

func (b *Bus) probe(f *fastmodbus.Frame) ([]byte, error) {
	bits := f.Payload[0]
	prefix := binary.BigEndian.Uint32(f.Payload[1:])

	var replies [][]byte
	for _, d := range b.Devices {
		if d.discovered || !d.matchesPrefix(bits, prefix) {
			continue
		}
		payload := make([]byte, 5)
		binary.BigEndian.PutUint32(payload, uint32(d.Serial))
		payload[4] = d.SlaveID
		raw, err := (&fastmodbus.Frame{
			Address:    fastmodbus.BroadcastAddr,
			Function:   f.Function,
			Subcommand: fastmodbus.SubScanReply,
			Payload:    payload,
		}).Encode()
		if err != nil {
			return nil, err
		}
		replies = append(replies, raw)
	}
	switch len(replies) {
	case 0:
		return nil, transport.ErrTimeout
	case 1:
		return replies[0], nil
	}
	return superimpose(replies), nil
}

func (b *Bus) confirm(f *fastmodbus.Frame) ([]byte, error) {
	serial := fastmodbus.SerialNumber(binary.BigEndian.Uint32(f.Payload))
	d := b.find(serial)
	if d == nil || d.DropConfirm {
		return nil, transport.ErrTimeout
	}
	d.discovered = true
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, uint32(d.Serial))
	payload[4] = d.SlaveID
	return (&fastmodbus.Frame{
		Address:    fastmodbus.BroadcastAddr,
		Function:   f.Function,
		Subcommand: fastmodbus.SubScanConfirm,
		Payload:    payload,
	}).Encode()
}

func (b *Bus) addressed(f *fastmodbus.Frame) ([]byte, error) {
	serial := fastmodbus.SerialNumber(binary.BigEndian.Uint32(f.Payload[:4]))
	d := b.find(serial)
	if d == nil {
		return nil, transport.ErrTimeout
	}
	funcCode := f.Payload[4]
	start := binary.BigEndian.Uint16(f.Payload[5:])

	if funcCode == fastmodbus.FuncCodeWriteMultipleRegister {
		count := binary.BigEndian.Uint16(f.Payload[7:])
		data := f.Payload[10:]
		for i := uint16(0); i < count; i++ {
			d.Holding[start+i] = binary.BigEndian.Uint16(data[i*2:])
		}
		return (&fastmodbus.Frame{
			Address:    fastmodbus.BroadcastAddr,
			Function:   f.Function,
			Subcommand: fastmodbus.SubAddressed,
			Payload:    f.Payload[:9],
		}).Encode()
	}

	regType := fastmodbus.RegisterType(funcCode)
	count := binary.BigEndian.Uint16(f.Payload[7:])
	var data []byte
	if regType.Bit() {
		data = make([]byte, (int(count)+7)/8)
		for i := uint16(0); i < count; i++ {
			if d.read(regType, start+i) != 0 {
				data[i/8] |= 1 << (i % 8)
			}
		}
	} else {
		data = make([]byte, count*2)
		for i := uint16(0); i < count; i++ {
			binary.BigEndian.PutUint16(data[i*2:], d.read(regType, start+i))
		}
	}

	payload := make([]byte, 6, 6+len(data))
	copy(payload, f.Payload[:4])
	payload[4] = funcCode
	payload[5] = byte(len(data))
	payload = append(payload, data...)
	return (&fastmodbus.Frame{
		Address:    fastmodbus.BroadcastAddr,
		Function:   f.Function,
		Subcommand: fastmodbus.SubAddressed,
		Payload:    payload,
	}).Encode()
}

// read serves the model registers from the model string so scan tests can
// resolve device models without populating tables by hand.
func (d *Device) read(t fastmodbus.RegisterType, address uint16) uint16 {
	if t == fastmodbus.Holding && d.Model != "" &&
		address >= fastmodbus.ModelRegisterStart &&
		address < fastmodbus.ModelRegisterStart+fastmodbus.ModelRegisterCount {
		if i := int(address - fastmodbus.ModelRegisterStart); i < len(d.Model) {
			return uint16(d.Model[i])
		}
		return 0
	}
	tab := d.table(t)
	if tab == nil {
		return 0
	}
	return tab[address]
}

func (b *Bus) configure(f *fastmodbus.Frame) ([]byte, error) {
	var d *Device
	for _, dev := range b.Devices {
		if dev.SlaveID == f.Address {
			d = dev
			break
		}
	}
	if d == nil {
		return nil, transport.ErrTimeout
	}

	data := f.Payload[1:]
	acks := []byte{byte(len(data) / 6)}
	for off := 0; off+6 <= len(data); off += 6 {
		c := fastmodbus.EventConfig{
			Type:     fastmodbus.RegisterType(data[off]),
			Address:  binary.BigEndian.Uint16(data[off+1:]),
			Count:    binary.BigEndian.Uint16(data[off+3:]),
			Priority: data[off+5],
		}
		if !c.Type.Valid() {
			acks = append(acks, 0x02)
			continue
		}
		d.configs = append(d.configs, c)
		acks = append(acks, 0x01)
	}
	return (&fastmodbus.Frame{
		Address:    f.Address,
		Function:   f.Function,
		Subcommand: fastmodbus.SubEventConfig,
		Payload:    acks,
	}).Encode()
}

func (b *Bus) events(f *fastmodbus.Frame) ([]byte, error) {
	minSlave := f.Payload[0]
	maxLen := int(f.Payload[1])
	lastSlave := f.Payload[2]
	lastFlag := f.Payload[3]

	ordered := make([]*Device, len(b.Devices))
	copy(ordered, b.Devices)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SlaveID < ordered[j].SlaveID })

	// Confirm the previous delivery first: only then may its events be
	// dropped from the queue.
	for _, d := range ordered {
		if d.inFlight > 0 && d.SlaveID == lastSlave && d.sentFlag == lastFlag {
			d.queue = d.queue[d.inFlight:]
			d.inFlight = 0
			d.nextFlag = d.sentFlag ^ 1
		}
	}

	for _, d := range ordered {
		if d.SlaveID < minSlave || len(d.queue) == 0 {
			continue
		}
		n := len(d.queue)
		if limit := maxLen / 5; n > limit {
			n = limit
		}
		if n == 0 {
			continue
		}
		if d.inFlight > 0 {
			// Unconfirmed delivery: repeat it verbatim.
			n = d.inFlight
		} else {
			d.inFlight = n
			d.sentFlag = d.nextFlag
		}

		payload := make([]byte, 4, 4+n*5)
		payload[0] = d.sentFlag
		payload[1] = byte(n)
		binary.BigEndian.PutUint16(payload[2:], uint16(n*5))
		for _, ev := range d.queue[:n] {
			entry := make([]byte, 5)
			entry[0] = byte(ev.regType)
			binary.BigEndian.PutUint16(entry[1:], ev.address)
			binary.BigEndian.PutUint16(entry[3:], ev.value)
			payload = append(payload, entry...)
		}
		return (&fastmodbus.Frame{
			Address:    d.SlaveID,
			Function:   f.Function,
			Subcommand: fastmodbus.SubEventResponse,
			Payload:    payload,
		}).Encode()
	}

	return (&fastmodbus.Frame{
		Address:    fastmodbus.BroadcastAddr,
		Function:   f.Function,
		Subcommand: fastmodbus.SubNoEvents,
	}).Encode()
}

// superimpose merges simultaneous transmissions: the idle line reads as
// all-ones, each transmitted zero bit wins.
func superimpose(frames [][]byte) []byte {
	maxLen := 0
	for _, f := range frames {
		if len(f) > maxLen {
			maxLen = len(f)
		}
	}
	out := make([]byte, maxLen)
	for i := range out {
		out[i] = 0xFF
	}
	for _, f := range frames {
		for i, b := range f {
			out[i] &= b
		}
	}
	return out
}

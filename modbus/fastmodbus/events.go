// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package fastmodbus

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxPriority is the highest event priority; 0 disables notifications
// for the range.
const MaxPriority = 3

// eventConfigSize is the wire size of one configuration record.
const eventConfigSize = 6

// eventEntrySize is the wire size of one event entry in a response.
const eventEntrySize = 5

// InvalidConfigError reports a configuration set rejected locally,
// before any frame is sent.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("fastmodbus: invalid event config: %s", e.Reason)
}

// EventConfig enables (or, with priority 0, disables) change
// notifications for a register range.
type EventConfig struct {
	Type     RegisterType
	Address  uint16
	Count    uint16
	Priority byte
}

func (c EventConfig) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", c.Type, c.Address, c.Count, c.Priority)
}

// Validate checks a single record. Unknown register types are not
// rejected here: the device decides, and reports a per-record rejection.
func (c EventConfig) Validate() error {
	if c.Count < 1 {
		return &InvalidConfigError{Reason: fmt.Sprintf("%s: count must be at least 1", c)}
	}
	if c.Priority > MaxPriority {
		return &InvalidConfigError{Reason: fmt.Sprintf("%s: priority above maximum %d", c, MaxPriority)}
	}
	if int(c.Address)+int(c.Count) > 0x10000 {
		return &InvalidConfigError{Reason: fmt.Sprintf("%s: range exceeds address space", c)}
	}
	return nil
}

// ValidateEventConfigs checks every record and rejects overlapping
// address ranges within the same register type. Order of the set does
// not matter.
func ValidateEventConfigs(configs []EventConfig) error {
	if len(configs) == 0 {
		return &InvalidConfigError{Reason: "empty config set"}
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	sorted := make([]EventConfig, len(configs))
	copy(sorted, configs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].Address < sorted[j].Address
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Type == cur.Type && int(cur.Address) < int(prev.Address)+int(prev.Count) {
			return &InvalidConfigError{Reason: fmt.Sprintf("%s overlaps %s", cur, prev)}
		}
	}
	return nil
}

// ParseRegisterType parses a register table name.
func ParseRegisterType(s string) (RegisterType, error) {
	switch strings.ToLower(s) {
	case "coil":
		return Coil, nil
	case "discrete":
		return Discrete, nil
	case "holding":
		return Holding, nil
	case "input":
		return Input, nil
	}
	return 0, fmt.Errorf("unknown register type %q", s)
}

// ParseEventConfigs parses the tool-level configuration string, e.g.
// "discrete:0:2:1,holding:5:2:2".
func ParseEventConfigs(s string) ([]EventConfig, error) {
	var configs []EventConfig
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 4 {
			return nil, &InvalidConfigError{Reason: fmt.Sprintf("%q: want type:address:count:priority", part)}
		}
		regType, err := ParseRegisterType(fields[0])
		if err != nil {
			return nil, &InvalidConfigError{Reason: err.Error()}
		}
		nums := make([]uint64, 3)
		for i, f := range fields[1:] {
			n, err := strconv.ParseUint(f, 0, 16)
			if err != nil {
				return nil, &InvalidConfigError{Reason: fmt.Sprintf("%q: %v", part, err)}
			}
			nums[i] = n
		}
		if nums[2] > MaxPriority {
			return nil, &InvalidConfigError{Reason: fmt.Sprintf("%q: priority above maximum %d", part, MaxPriority)}
		}
		configs = append(configs, EventConfig{
			Type:     regType,
			Address:  uint16(nums[0]),
			Count:    uint16(nums[1]),
			Priority: byte(nums[2]),
		})
	}
	return configs, nil
}

// NewEventConfigRequest builds the per-slave configuration frame. The
// payload is a length-prefixed sequence of fixed-size records in
// declaration order.
func NewEventConfigRequest(function, slaveID byte, configs []EventConfig) *Frame {
	payload := make([]byte, 1, 1+len(configs)*eventConfigSize)
	payload[0] = byte(len(configs) * eventConfigSize)
	for _, c := range configs {
		rec := make([]byte, eventConfigSize)
		rec[0] = byte(c.Type)
		binary.BigEndian.PutUint16(rec[1:], c.Address)
		binary.BigEndian.PutUint16(rec[3:], c.Count)
		rec[5] = c.Priority
		payload = append(payload, rec...)
	}
	return &Frame{Address: slaveID, Function: function, Subcommand: SubEventConfig, Payload: payload}
}

// ConfigAck is the device's verdict on one configuration record.
// Code carries the device rejection code when not accepted.
type ConfigAck struct {
	Accepted bool
	Code     byte
}

// configAckAccepted is the wire value for an accepted record.
const configAckAccepted = 0x01

// ParseEventConfigAcks decodes the configuration response into one ack
// per request record, index-aligned. Partial acceptance is data, not an
// error: the caller decides whether to retry.
func ParseEventConfigAcks(f *Frame, function byte, records int) ([]ConfigAck, error) {
	if err := expectReply(f, function, SubEventConfig); err != nil {
		return nil, err
	}
	if len(f.Payload) < 1 {
		return nil, &MalformedFrameError{Reason: "config response missing count"}
	}
	if int(f.Payload[0]) != records || len(f.Payload) != 1+records {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("config response covers %d records, request had %d", f.Payload[0], records)}
	}
	acks := make([]ConfigAck, records)
	for i := range acks {
		b := f.Payload[1+i]
		acks[i] = ConfigAck{Accepted: b == configAckAccepted, Code: b}
	}
	return acks, nil
}

// AckState is the flow-control cursor threaded through successive event
// reads. It is passed by value: the caller owns it, and feeding back a
// stale copy after a crash redelivers unconfirmed events on purpose.
type AckState struct {
	LastSlaveID byte
	LastFlag    byte
}

// EventRecord is one change notification decoded from an event response.
type EventRecord struct {
	SlaveID byte
	Type    RegisterType
	Address uint16
	Value   uint16
	Flag    byte
}

// NewEventRequest builds the broadcast asking devices with slave id
// >= minSlaveID for pending events, confirming the previous delivery
// identified by ack.
func NewEventRequest(function, minSlaveID, maxDataLength byte, ack AckState) *Frame {
	return &Frame{
		Address:    BroadcastAddr,
		Function:   function,
		Subcommand: SubEventRequest,
		Payload:    []byte{minSlaveID, maxDataLength, ack.LastSlaveID, ack.LastFlag},
	}
}

// ParseEventResponse decodes an event response frame:
//
//	Flag            : 1 byte, confirmation toggle for this delivery
//	Count           : 1 byte
//	Data length     : 2 bytes
//	Entries         : Count * 5 bytes (type, address, value)
//
// A no-events frame yields an empty batch. Entries come back in device
// transmission order.
func ParseEventResponse(f *Frame, function byte) ([]EventRecord, error) {
	if f.Function != function {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("function 0x%02X in event response, expected 0x%02X", f.Function, function)}
	}
	switch f.Subcommand {
	case SubNoEvents:
		return nil, nil
	case SubEventResponse:
	default:
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("unexpected event subcommand 0x%02X", f.Subcommand)}
	}

	if len(f.Payload) < 4 {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("event response payload %d bytes, need at least 4", len(f.Payload))}
	}
	flag := f.Payload[0]
	count := int(f.Payload[1])
	dataLen := int(binary.BigEndian.Uint16(f.Payload[2:4]))
	data := f.Payload[4:]
	if dataLen != len(data) || dataLen != count*eventEntrySize {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("event data length %d does not cover %d entries", dataLen, count)}
	}

	records := make([]EventRecord, count)
	for i := range records {
		entry := data[i*eventEntrySize:]
		records[i] = EventRecord{
			SlaveID: f.Address,
			Type:    RegisterType(entry[0]),
			Address: binary.BigEndian.Uint16(entry[1:]),
			Value:   binary.BigEndian.Uint16(entry[3:]),
			Flag:    flag,
		}
	}
	return records, nil
}

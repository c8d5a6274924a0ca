// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package smbus implements SMBus protocol operations, with optional packet
// error checking, over an I2C master.
package smbus

import (
	"errors"
	"fmt"

	"github.com/sigurn/crc8"
)

// Txer writes w then reads r from a 7 bit address with a repeated start
// between. *i2cm.Controller is one.
type Txer interface {
	Tx(addr uint16, w, r []byte) error
}

type Operation int

const (
	Quick Operation = iota

	SendByte
	RcvByte

	WriteByteData
	ReadByteData

	WriteWordData
	ReadWordData

	WriteBlockData
	ReadBlockData

	ProcessCall

	BlockProcessCall
)

var operationStrings = []string{
	Quick:            "quick",
	SendByte:         "send byte",
	RcvByte:          "receive byte",
	WriteByteData:    "write byte data",
	ReadByteData:     "read byte data",
	WriteWordData:    "write word data",
	ReadWordData:     "read word data",
	WriteBlockData:   "write block data",
	ReadBlockData:    "read block data",
	ProcessCall:      "process call",
	BlockProcessCall: "block process call",
}

func (op Operation) String() string {
	if int(op) < len(operationStrings) {
		return operationStrings[op]
	}
	return fmt.Sprintf("operation %d", int(op))
}

const BlockMax = 32

type Data [BlockMax]byte

var (
	ErrPEC         = errors.New("smbus: packet error check mismatch")
	ErrUnsupported = errors.New("smbus: unsupported operation")
	ErrBlockSize   = errors.New("smbus: block size")
)

var pecTable = crc8.MakeTable(crc8.CRC8)

func pec(b ...[]byte) byte {
	crc := crc8.Init(pecTable)
	for _, x := range b {
		crc = crc8.Update(crc, x, pecTable)
	}
	return crc8.Complete(crc, pecTable)
}

type Bus struct {
	Txer
	// PEC appends a CRC-8 to writes and checks it on reads.
	PEC bool
}

// Do runs op with command on the device at address. Write operations send
// data[:nData]; read operations fill data and return the count read.
func (bus *Bus) Do(address byte, op Operation, command byte, data *Data, nData int) (nRead int, err error) {
	var w []byte
	nr := 0
	block := false

	switch op {
	case Quick:
		return 0, ErrUnsupported
	case SendByte:
		w = []byte{command}
	case RcvByte:
		nr = 1
	case WriteByteData:
		w = []byte{command, data[0]}
	case ReadByteData:
		w, nr = []byte{command}, 1
	case WriteWordData:
		w = []byte{command, data[0], data[1]}
	case ReadWordData:
		w, nr = []byte{command}, 2
	case ProcessCall:
		w, nr = []byte{command, data[0], data[1]}, 2
	case WriteBlockData, BlockProcessCall:
		if nData < 0 || nData > BlockMax {
			return 0, fmt.Errorf("%w: %d bytes", ErrBlockSize, nData)
		}
		w = append([]byte{command, byte(nData)}, data[:nData]...)
		if op == BlockProcessCall {
			nr, block = 1+BlockMax, true
		}
	case ReadBlockData:
		w, nr, block = []byte{command}, 1+BlockMax, true
	default:
		return 0, ErrUnsupported
	}

	wa := []byte{address << 1}
	ra := []byte{address<<1 | 1}
	if bus.PEC && nr == 0 {
		w = append(w, pec(wa, w))
	}
	var r []byte
	if nr > 0 {
		n := nr
		if bus.PEC {
			n++
		}
		r = make([]byte, n)
	}
	if err = bus.Tx(uint16(address), w, r); err != nil {
		return 0, fmt.Errorf("smbus %s 0x%02x: %w", op, address, err)
	}
	if nr == 0 {
		return 0, nil
	}

	payload := r[:nr]
	if block {
		n := int(r[0])
		if n > BlockMax {
			return 0, fmt.Errorf("%w: device sent %d bytes", ErrBlockSize, n)
		}
		payload = r[:1+n]
	}
	if bus.PEC {
		sum := r[len(payload)]
		var want byte
		if len(w) > 0 {
			want = pec(wa, w, ra, payload)
		} else {
			want = pec(ra, payload)
		}
		if sum != want {
			return 0, fmt.Errorf("%w: 0x%02x != 0x%02x", ErrPEC, sum, want)
		}
	}
	if block {
		payload = payload[1:]
	}
	nRead = copy(data[:], payload)
	return
}

func (bus *Bus) ReadByteData(address, command byte) (b byte, err error) {
	var d Data
	_, err = bus.Do(address, ReadByteData, command, &d, 0)
	return d[0], err
}

func (bus *Bus) WriteByteData(address, command, b byte) error {
	d := Data{b}
	_, err := bus.Do(address, WriteByteData, command, &d, 1)
	return err
}

// ReadWord returns the little endian word at command.
func (bus *Bus) ReadWord(address, command byte) (w uint16, err error) {
	var d Data
	_, err = bus.Do(address, ReadWordData, command, &d, 0)
	return uint16(d[0]) | uint16(d[1])<<8, err
}

func (bus *Bus) WriteWord(address, command byte, w uint16) error {
	d := Data{byte(w), byte(w >> 8)}
	_, err := bus.Do(address, WriteWordData, command, &d, 2)
	return err
}

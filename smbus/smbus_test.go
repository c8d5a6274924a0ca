// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package smbus

import (
	"errors"
	"testing"

	"github.com/platinasystems/i2cm/internal/test"
)

// device records the last transfer and answers reads with reply.
type device struct {
	addr  uint16
	w     []byte
	nr    int
	reply []byte
	err   error
}

func (d *device) Tx(addr uint16, w, r []byte) error {
	d.addr = addr
	d.w = append([]byte(nil), w...)
	d.nr = len(r)
	copy(r, d.reply)
	return d.err
}

func TestPECCheck(t *testing.T) {
	test.Assert{TB: t}.True(pec([]byte("123456789")) == 0xf4)
	test.Assert{TB: t}.True(pec([]byte("1234"), []byte("56789")) == 0xf4)
}

func TestWrite(t *testing.T) {
	for _, x := range []struct {
		name string
		op   Operation
		data []byte
		n    int
		w    []byte
	}{
		{"send", SendByte, nil, 0, []byte{0x10}},
		{"byte", WriteByteData, []byte{0xaa}, 1, []byte{0x10, 0xaa}},
		{"word", WriteWordData, []byte{0x34, 0x12}, 2, []byte{0x10, 0x34, 0x12}},
		{"block", WriteBlockData, []byte{1, 2, 3}, 3, []byte{0x10, 3, 1, 2, 3}},
	} {
		t.Run(x.name, func(t *testing.T) {
			assert := test.Assert{TB: t}
			dev := &device{}
			bus := &Bus{Txer: dev}
			var d Data
			copy(d[:], x.data)
			_, err := bus.Do(0x50, x.op, 0x10, &d, x.n)
			assert.Nil(err)
			assert.Bytes(dev.w, x.w)
			assert.Int(dev.nr, 0)
			assert.True(dev.addr == 0x50)

			bus.PEC = true
			_, err = bus.Do(0x50, x.op, 0x10, &d, x.n)
			assert.Nil(err)
			assert.Bytes(dev.w, append(x.w, pec([]byte{0xa0}, x.w)))
		})
	}
}

func TestRead(t *testing.T) {
	assert := test.Assert{TB: t}
	dev := &device{reply: []byte{0x34, 0x12}}
	bus := &Bus{Txer: dev}
	w, err := bus.ReadWord(0x50, 0x02)
	assert.Nil(err)
	assert.True(w == 0x1234)
	assert.Bytes(dev.w, []byte{0x02})
	assert.Int(dev.nr, 2)

	bus.PEC = true
	dev.reply = []byte{0x34, 0x12, pec([]byte{0xa0, 0x02, 0xa1, 0x34, 0x12})}
	w, err = bus.ReadWord(0x50, 0x02)
	assert.Nil(err)
	assert.True(w == 0x1234)
	assert.Int(dev.nr, 3)

	dev.reply[2] ^= 1
	_, err = bus.ReadWord(0x50, 0x02)
	assert.Error(err, ErrPEC)
}

func TestRcvByte(t *testing.T) {
	assert := test.Assert{TB: t}
	dev := &device{reply: []byte{0x5a, pec([]byte{0xa1, 0x5a})}}
	bus := &Bus{Txer: dev, PEC: true}
	var d Data
	n, err := bus.Do(0x50, RcvByte, 0, &d, 0)
	assert.Nil(err)
	assert.Int(n, 1)
	assert.True(d[0] == 0x5a)
	assert.Int(len(dev.w), 0)
}

func TestBlock(t *testing.T) {
	assert := test.Assert{TB: t}
	reply := []byte{3, 7, 8, 9}
	dev := &device{reply: reply}
	bus := &Bus{Txer: dev}
	var d Data
	n, err := bus.Do(0x50, ReadBlockData, 0x20, &d, 0)
	assert.Nil(err)
	assert.Int(n, 3)
	assert.Bytes(d[:n], []byte{7, 8, 9})
	assert.Int(dev.nr, 1+BlockMax)

	dev.reply = []byte{33}
	_, err = bus.Do(0x50, ReadBlockData, 0x20, &d, 0)
	assert.Error(err, ErrBlockSize)

	_, err = bus.Do(0x50, WriteBlockData, 0x20, &d, 33)
	assert.Error(err, ErrBlockSize)

	bus.PEC = true
	d = Data{1}
	dev.reply = append(reply, pec([]byte{0xa0, 0x20, 1, 1, 0xa1}, reply))
	n, err = bus.Do(0x50, BlockProcessCall, 0x20, &d, 1)
	assert.Nil(err)
	assert.Int(n, 3)
	assert.Bytes(dev.w, []byte{0x20, 1, 1})
}

func TestErrors(t *testing.T) {
	assert := test.Assert{TB: t}
	var d Data
	bus := &Bus{Txer: &device{}}
	_, err := bus.Do(0x50, Quick, 0, &d, 0)
	assert.Error(err, ErrUnsupported)

	nack := errors.New("nack")
	bus = &Bus{Txer: &device{err: nack}}
	assert.Error(bus.WriteByteData(0x50, 1, 2), nack)
	assert.Equal(ProcessCall.String(), "process call")
}

func TestByteData(t *testing.T) {
	assert := test.Assert{TB: t}
	dev := &device{reply: []byte{0x5a}}
	bus := &Bus{Txer: dev}
	b, err := bus.ReadByteData(0x50, 0x07)
	assert.Nil(err)
	assert.True(b == 0x5a)
	assert.Bytes(dev.w, []byte{0x07})
	assert.Int(dev.nr, 1)

	assert.Nil(bus.WriteByteData(0x51, 0x08, 0x33))
	assert.True(dev.addr == 0x51)
	assert.Bytes(dev.w, []byte{0x08, 0x33})
	assert.Int(dev.nr, 0)
}

// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import "errors"

// MsgFlag values match linux i2c_msg flags.
type MsgFlag uint16

const (
	Rd      MsgFlag = 0x0001
	Ten     MsgFlag = 0x0010
	NoStart MsgFlag = 0x4000
)

// Msg is one segment of a combined transfer.
type Msg struct {
	Addr  uint16
	Flags MsgFlag
	Buf   []byte
}

var (
	ErrNoMsgs = errors.New("i2cm: no messages")
	ErrTenBit = errors.New("i2cm: 10 bit address")
)

// Buffers shorter than this go through the data registers.
const dmaMinLen = 4

func (c *Controller) useDma(p []byte) bool {
	return c.dma != nil && len(p) >= dmaMinLen
}

// Xfer runs msgs in order and returns the number completed. A NoStart
// message is held and sent as the repeated start prefix of the next read.
func (c *Controller) Xfer(msgs []Msg) (n int, err error) {
	if len(msgs) == 0 {
		return 0, ErrNoMsgs
	}
	var prefix []byte
	restart := false
	for i := range msgs {
		m := &msgs[i]
		if m.Flags&Ten != 0 {
			return n, ErrTenBit
		}
		if m.Flags&NoStart != 0 {
			prefix, restart = m.Buf, true
			n++
			continue
		}
		cmd := Cmd{Dev: c.cfg.Dev, Addr: m.Addr}
		if m.Flags&Rd != 0 {
			if restart {
				cmd.Restart, cmd.Write = true, prefix
				prefix, restart = nil, false
			}
			cmd.Read = m.Buf
			if c.useDma(m.Buf) {
				err = c.DmaRead(&cmd)
			} else {
				err = c.Read(&cmd)
			}
		} else {
			cmd.Write = m.Buf
			if c.useDma(m.Buf) {
				err = c.DmaWrite(&cmd)
			} else {
				err = c.Write(&cmd)
			}
		}
		if err != nil {
			return
		}
		n++
	}
	return
}

// Tx writes w then reads r from addr, with a repeated start between.
// Either may be empty.
func (c *Controller) Tx(addr uint16, w, r []byte) error {
	var msgs []Msg
	switch {
	case len(w) > 0 && len(r) > 0:
		msgs = []Msg{{addr, NoStart, w}, {addr, Rd, r}}
	case len(w) > 0:
		msgs = []Msg{{addr, 0, w}}
	case len(r) > 0:
		msgs = []Msg{{addr, Rd, r}}
	default:
		return nil
	}
	_, err := c.Xfer(msgs)
	return err
}

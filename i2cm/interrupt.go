// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import "github.com/platinasystems/log"

// Interrupt services one assertion of the controller's interrupt line.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.regs
	x := r.interruptFlags()
	r.statusClear(clrAll)
	f := decodeIrq(x, r.overflowFlags())
	p := &c.p
	if p.Phase == Idle {
		r.dmaFlags()
		c.debugf("idle interrupt: %s", f)
		return
	}
	p.Irq = f
	c.debugf("%s interrupt: %s", p.Phase, f)
	if p.Phase.isWrite() {
		c.writeEvent(f)
	} else {
		c.readEvent(f)
	}

	d := decodeDma(r.dmaFlags())
	p.Dma = d
	if !p.Phase.isDma() {
		return
	}
	if d.Fault() {
		log.Print("daemon", "warn", c.cfg.Name, ": ", p.Phase, ": dma ", d)
	}
	if d.Done {
		c.complete(Ok)
	}
}

// complete records the result and wakes the caller; the first terminal
// result of a transaction sticks. Called with mu held.
func (c *Controller) complete(s Status) {
	if c.signaled {
		return
	}
	c.p.Result = s
	c.signal()
}

// abort ends the transaction on a protocol error.
func (c *Controller) abort(s Status) {
	c.p.Irq.ActiveDone = true
	c.complete(s)
	c.regs.reset()
}

// masterDone handles active done. In DMA phases completion is the DMA
// engine's done flag.
func (c *Controller) masterDone() {
	if c.p.Phase.isDma() {
		if !c.signaled {
			c.p.Result = Ok
		}
		return
	}
	c.complete(Ok)
}

func (c *Controller) writeEvent(f IrqFlags) {
	p := &c.p
	switch {
	case f.ActiveDone:
		c.masterDone()
	case f.AddrNack || f.DataNack:
		c.abort(RemoteNack)
	case f.SclHoldTooLong:
		c.abort(ClockHeldTooLong)
	case f.FifoEmpty:
		c.abort(FifoEmpty)
	case f.EmptyThreshold && p.Burst > 0 && p.Phase == WritePhase:
		c.refill()
	}
}

// refill pushes the next burst units into the transmit fifo, zero padding
// past the end of the buffer.
func (c *Controller) refill() {
	p := &c.p
	for i := 0; i < c.cfg.EmptyThreshold; i++ {
		var w [4]byte
		if p.Offset < p.Length {
			p.Offset += copy(w[:], p.Buf[p.Offset:])
		}
		c.regs.pushWord(w[:])
		p.Burst--
		if p.Burst == 0 {
			c.regs.disableInt0(en0EmptyThreshold | en0Empty)
			break
		}
	}
	c.regs.statusClear(clrEmptyThreshold)
}

func (c *Controller) readEvent(f IrqFlags) {
	p := &c.p
	switch {
	case f.AddrNack || f.DataNack:
		c.abort(RemoteNack)
	case f.SclHoldTooLong:
		c.abort(ClockHeldTooLong)
	case f.ReadOverflow:
		c.abort(ReadOverflow)
	default:
		if p.Burst > 0 && p.Phase == ReadPhase {
			c.drain()
		}
		if f.ActiveDone {
			if p.Remainder > 0 && p.Phase == ReadPhase {
				c.drainRemainder()
			}
			c.masterDone()
		}
	}
}

// drain copies completed bursts out of the data registers in ring order
// from the cursor, stopping at the first incomplete one.
func (c *Controller) drain() {
	p := &c.p
	b := c.burstBytes()
	words := b / 4
	ready := c.regs.burstReadyFlags()
	for p.Burst > 0 {
		unit := uint(p.Slot) / uint(words)
		if ready&(1<<(uint(b)-1+uint(b)*unit)) == 0 {
			break
		}
		for i := 0; i < words; i++ {
			c.regs.readSlot(p.Slot, p.Buf[p.Offset:])
			p.Offset += 4
			p.Slot = p.Slot.next()
		}
		c.regs.burstReadyClear(uint32((uint64(1)<<uint(b) - 1) << (uint(b) * unit)))
		p.Burst--
	}
}

// drainRemainder copies the trailing partial burst after active done.
func (c *Controller) drainRemainder() {
	p := &c.p
	var b [16]byte
	s := p.Slot
	for i := 0; i < c.burstBytes()/4; i++ {
		c.regs.readSlot(s, b[4*i:])
		s = s.next()
	}
	p.Offset += copy(p.Buf[p.Offset:p.Offset+p.Remainder], b[:])
	p.Remainder = 0
}

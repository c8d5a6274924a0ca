// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

func (c *Controller) reject(s Status) error {
	c.stats.add(s)
	c.debugf("rejected: %s", s)
	return s.ToError()
}

func (c *Controller) program(cmd *Cmd) {
	c.regs.setClock(c.cfg.SourceFreq, c.freq(cmd))
	c.regs.setSlaveAddr(cmd.Addr)
	c.regs.setSclDelay(c.cfg.SclDelay)
}

// Write sends cmd.Write. Up to 32 bytes are loaded before the trigger;
// the rest is streamed by the interrupt handler in 4 byte burst units.
func (c *Controller) Write(cmd *Cmd) error {
	n := len(cmd.Write)
	if s := c.admit(cmd.Dev, n > 0 && n <= countMax); s != Ok {
		return c.reject(s)
	}
	burst, preload := 0, n
	if n > burstBytes {
		burst = (n - burstBytes + 3) / 4
		preload = burstBytes
	}
	c.start(Progress{
		Phase:  WritePhase,
		Dev:    cmd.Dev,
		Burst:  burst,
		Offset: preload,
		Length: n,
		Buf:    cmd.Write,
	})
	c.debugf("write %d bytes to 0x%02x, burst %d", n, cmd.Addr, burst)

	r := c.regs
	c.program(cmd)
	r.setCounts(n, 0)
	r.setActiveMode(triggerMode)
	r.setRwMode(writeMode)
	r.loadData(cmd.Write[:preload])
	if burst > 0 {
		r.setIntEnable0Threshold(en0Transfer|en0EmptyThreshold,
			uint32(c.cfg.EmptyThreshold))
	} else {
		mregs.int_en0.Set(r.m, en0Transfer)
	}
	r.trigger()

	s := c.wait(c.cfg.Timeout)
	c.finish(s)
	return s.ToError()
}

func restartOk(cmd *Cmd) bool { return !cmd.Restart || len(cmd.Write) <= burstBytes }

// Read fills cmd.Read, first sending cmd.Write with a repeated start when
// cmd.Restart is set. Whole bursts are drained by the interrupt handler as
// they complete; the remainder after active done.
func (c *Controller) Read(cmd *Cmd) error {
	n := len(cmd.Read)
	if s := c.admit(cmd.Dev, n > 0 && n <= countMax && restartOk(cmd)); s != Ok {
		return c.reject(s)
	}
	b := c.burstBytes()
	burst, rem := n/b, n%b
	c.start(Progress{
		Phase:     ReadPhase,
		Dev:       cmd.Dev,
		Burst:     burst,
		Remainder: rem,
		Length:    n,
		Buf:       cmd.Read,
	})
	c.debugf("read %d bytes from 0x%02x, burst %d remainder %d",
		n, cmd.Addr, burst, rem)

	r := c.regs
	c.program(cmd)
	var nw int
	if cmd.Restart {
		nw = len(cmd.Write)
	}
	r.setCounts(nw, n)
	r.setActiveMode(triggerMode)
	if cmd.Restart {
		r.loadData(cmd.Write)
		r.setRwMode(restartMode)
	} else {
		r.setRwMode(readMode)
	}
	var en1, en2 uint32
	if burst > 0 {
		en1, en2 = c.burstEnable(), en2OverflowAll
	}
	r.setIntEnables(en0Transfer, en1, en2)
	r.trigger()

	s := c.wait(c.cfg.Timeout)
	c.finish(s)
	return s.ToError()
}

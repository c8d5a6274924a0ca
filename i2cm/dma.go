// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import (
	"errors"

	"github.com/platinasystems/i2cm/hw/dma"
	"github.com/platinasystems/log"
)

var ErrNoDMA = errors.New("i2cm: no dma memory")

type dmaBuf struct {
	dma.Region
	scratch bool
}

// mapBuf makes p visible to the DMA engine, falling back to the scratch
// buffer.
func (c *Controller) mapBuf(p []byte, dir dma.Direction) (b dmaBuf, ok bool) {
	r, err := c.dma.Map(p, dir)
	if err == nil {
		return dmaBuf{Region: r}, true
	}
	log.Print("daemon", "warn", c.cfg.Name, ": map ", dir, ": ", err,
		"; using scratch buffer")
	if len(p) > c.scratch.Len() {
		return
	}
	if dir == dma.ToDevice {
		copy(c.scratch.Data, p)
	}
	return dmaBuf{Region: c.scratch, scratch: true}, true
}

func (c *Controller) unmapBuf(b dmaBuf, p []byte, dir dma.Direction) {
	if !b.scratch {
		c.dma.Unmap(b.Region, p, dir)
	} else if dir == dma.FromDevice {
		copy(p, b.Data)
	}
}

// DmaWrite sends cmd.Write through the DMA engine.
func (c *Controller) DmaWrite(cmd *Cmd) error {
	if c.dma == nil {
		return ErrNoDMA
	}
	n := len(cmd.Write)
	if s := c.admit(cmd.Dev, n > 0 && n <= countMax); s != Ok {
		return c.reject(s)
	}
	buf, ok := c.mapBuf(cmd.Write, dma.ToDevice)
	if !ok {
		c.busy.Store(false)
		return c.reject(InvalidCount)
	}
	c.start(Progress{
		Phase:  DmaWritePhase,
		Dev:    cmd.Dev,
		Length: n,
		Buf:    cmd.Write,
	})
	c.debugf("dma write %d bytes to 0x%02x at 0x%x", n, cmd.Addr, buf.Phys)

	r := c.regs
	c.program(cmd)
	r.enableDmaMode()
	r.setActiveMode(autoMode)
	r.setRwMode(writeMode)
	mregs.int_en0.Set(r.m, en0Transfer)
	r.dmaSetup(buf.Phys, n, false)
	r.dmaGo()

	s := c.wait(c.cfg.DmaTimeout)
	r.statusClear(0xffffffff)
	c.unmapBuf(buf, cmd.Write, dma.ToDevice)
	c.finish(s)
	return s.ToError()
}

// DmaRead fills cmd.Read through the DMA engine. A restart prefix is
// loaded into the data registers and sent under manual trigger.
func (c *Controller) DmaRead(cmd *Cmd) error {
	if c.dma == nil {
		return ErrNoDMA
	}
	n := len(cmd.Read)
	if s := c.admit(cmd.Dev, n > 0 && n <= countMax && restartOk(cmd)); s != Ok {
		return c.reject(s)
	}
	buf, ok := c.mapBuf(cmd.Read, dma.FromDevice)
	if !ok {
		c.busy.Store(false)
		return c.reject(InvalidCount)
	}
	c.start(Progress{
		Phase:  DmaReadPhase,
		Dev:    cmd.Dev,
		Length: n,
		Buf:    cmd.Read,
	})
	c.debugf("dma read %d bytes from 0x%02x at 0x%x", n, cmd.Addr, buf.Phys)

	r := c.regs
	c.program(cmd)
	r.enableDmaMode()
	if cmd.Restart {
		r.setActiveMode(triggerMode)
		r.setRwMode(restartMode)
		r.setCounts(len(cmd.Write), n)
		r.loadData(cmd.Write)
	} else {
		r.setActiveMode(autoMode)
		r.setRwMode(readMode)
	}
	r.setIntEnables(en0Transfer, 0, 0)
	r.dmaSetup(buf.Phys, n, true)
	r.dmaGo()
	if cmd.Restart {
		r.trigger()
	}

	s := c.wait(c.cfg.DmaTimeout)
	r.statusClear(0xffffffff)
	c.unmapBuf(buf, cmd.Read, dma.FromDevice)
	c.finish(s)
	return s.ToError()
}

// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package i2cm drives an interrupt driven I2C master controller through
// its transaction and DMA register blocks.
package i2cm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinasystems/i2cm/hw"
	"github.com/platinasystems/i2cm/hw/dma"
	"github.com/platinasystems/log"
)

const (
	MaxDevices  = 4
	countMax    = 0xffff
	ScratchSize = 1024
)

type Config struct {
	// Name prefixes log messages.
	Name string
	// Device index used by Xfer and Tx.
	Dev int
	// Controller source clock and default bus clock, in kHz.
	SourceFreq uint32
	Freq       uint32
	// SCL delay, 0 to 3 source clocks.
	SclDelay uint32

	Timeout    time.Duration
	DmaTimeout time.Duration

	// Write burst units refilled per empty threshold interrupt, 1 to 7.
	EmptyThreshold int
	// Read bursts are 16 bytes, else 4.
	Burst16 bool

	Debug bool
}

func DefaultConfig() Config {
	return Config{
		Name:           "i2cm",
		SourceFreq:     27000,
		Freq:           400,
		SclDelay:       1,
		Timeout:        400 * time.Millisecond,
		DmaTimeout:     time.Second,
		EmptyThreshold: 4,
		Burst16:        true,
	}
}

// IRQ is the controller's interrupt line.
type IRQ interface {
	Request(handler func()) error
	Free() error
}

// DMA provides device visible memory.
type DMA interface {
	Alloc(n int) (dma.Region, error)
	Free(r dma.Region)
	Map(p []byte, dir dma.Direction) (dma.Region, error)
	Unmap(r dma.Region, p []byte, dir dma.Direction)
}

type Controller struct {
	cfg  Config
	regs regs
	irq  IRQ
	dma  DMA

	scratch dma.Region

	// Admission gate; held for the whole transaction.
	busy atomic.Bool

	// mu guards p and signaled against the interrupt handler.
	mu       sync.Mutex
	p        Progress
	signaled bool
	done     chan struct{}

	stats Stats
}

// New resets the controller, allocates the DMA scratch buffer and requests
// the interrupt line.
func New(cfg Config, m, d hw.Block, irq IRQ, mem DMA) (c *Controller, err error) {
	if cfg.EmptyThreshold < 1 || cfg.EmptyThreshold > en0EmptyThresholdMask {
		return nil, fmt.Errorf("%s: empty threshold %d out of range",
			cfg.Name, cfg.EmptyThreshold)
	}
	if cfg.SourceFreq == 0 || cfg.Freq == 0 {
		return nil, fmt.Errorf("%s: zero clock", cfg.Name)
	}
	c = &Controller{
		cfg:  cfg,
		regs: regs{m: m, d: d},
		irq:  irq,
		dma:  mem,
		done: make(chan struct{}, 1),
	}
	c.regs.reset()
	if mem != nil {
		if c.scratch, err = mem.Alloc(ScratchSize); err != nil {
			return nil, fmt.Errorf("%s: scratch: %w", cfg.Name, err)
		}
	}
	if err = irq.Request(c.Interrupt); err != nil {
		c.freeScratch()
		log.Print("daemon", "err", cfg.Name, ": request irq: ", err)
		return nil, fmt.Errorf("%w: %v", ErrIrqRegistrationFailed, err)
	}
	log.Printf("daemon", "info", "%s: version 0x%x", cfg.Name, c.regs.version())
	return
}

func (c *Controller) freeScratch() {
	if c.scratch.Len() > 0 {
		c.dma.Free(c.scratch)
		c.scratch = dma.Region{}
	}
}

// Close frees the interrupt line and scratch buffer.
func (c *Controller) Close() error {
	err := c.irq.Free()
	c.freeScratch()
	log.Print("daemon", "info", c.cfg.Name, ": closed")
	return err
}

func (c *Controller) String() string { return c.cfg.Name }

// Progress returns a copy of the transaction state.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p
}

func (c *Controller) Stats() Stats { return c.stats.snapshot() }

func (c *Controller) debugf(format string, args ...interface{}) {
	if c.cfg.Debug {
		log.Printf(append([]interface{}{"daemon", "debug",
			c.cfg.Name + ": " + format}, args...)...)
	}
}

// admit checks the device, takes the busy gate, then checks counts. On
// success the caller owns the gate until finish.
func (c *Controller) admit(dev int, countOk bool) Status {
	if dev < 0 || dev >= MaxDevices {
		return InvalidDevice
	}
	if !c.busy.CompareAndSwap(false, true) {
		return Busy
	}
	if !countOk {
		c.busy.Store(false)
		return InvalidCount
	}
	return Ok
}

func (c *Controller) freq(cmd *Cmd) uint32 {
	if cmd.Freq == 0 {
		return c.cfg.Freq
	}
	return cmd.Freq
}

func (c *Controller) burstBytes() int {
	if c.cfg.Burst16 {
		return 16
	}
	return 4
}

func (c *Controller) burstEnable() uint32 {
	if c.cfg.Burst16 {
		return en1Burst16
	}
	return en1Burst4
}

// start resets the controller and publishes a fresh progress snapshot
// for the new phase. Status left over from an earlier transaction is
// cleared under mu, so an interrupt handler that takes mu after the new
// phase is visible cannot see it.
func (c *Controller) start(p Progress) {
	p.Busy = true
	c.mu.Lock()
	c.regs.reset()
	c.regs.dmaFlags()
	c.p = p
	c.signaled = false
	select {
	case <-c.done:
	default:
	}
	c.mu.Unlock()
}

// signal wakes the waiting transaction at most once. Called with mu held.
func (c *Controller) signal() {
	if c.signaled {
		return
	}
	c.signaled = true
	select {
	case c.done <- struct{}{}:
	default:
	}
}

func (c *Controller) wait(d time.Duration) (s Status) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		c.mu.Lock()
		s = c.p.Result
		c.mu.Unlock()
	case <-t.C:
		s = Timeout
	}
	return
}

// finish resets the controller, returns to idle and releases the gate.
func (c *Controller) finish(s Status) {
	c.regs.reset()
	c.mu.Lock()
	phase := c.p.Phase
	if s == Timeout {
		c.p.Result = Timeout
	}
	c.p.Phase = Idle
	c.p.Busy = false
	c.mu.Unlock()
	c.busy.Store(false)
	c.stats.add(s)
	switch s {
	case Ok:
		c.debugf("%s done", phase)
	default:
		log.Print("daemon", "err", c.cfg.Name, ": ", phase, ": ", s)
	}
}

// Stats counts transaction results.
type Stats struct {
	counts [nStatus]uint64
}

func (s *Stats) add(x Status) { atomic.AddUint64(&s.counts[x], 1) }

func (s *Stats) snapshot() (t Stats) {
	for i := range s.counts {
		t.counts[i] = atomic.LoadUint64(&s.counts[i])
	}
	return
}

func (s Stats) Count(x Status) uint64 { return s.counts[x] }

// ForEach calls f for each status with a non-zero count.
func (s Stats) ForEach(f func(x Status, n uint64)) {
	for i, n := range s.counts {
		if n != 0 {
			f(Status(i), n)
		}
	}
}

// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platinasystems/i2cm/hw"
	"github.com/platinasystems/i2cm/hw/dma"
)

const (
	arenaPhys = 0x10000
	arenaSize = 8 << 10
)

// sim models both register blocks closely enough to drive transactions:
// software reset, flag clear strobes, burst ready clear, self clearing DMA
// go and write 1 to clear DMA flags. Words written to data[0] after the
// trigger are collected as the transmit fifo.
type sim struct {
	mu     sync.Mutex
	m, d   [32]uint32
	resets int
	stores int
	fifo   []uint32
	dmaGos int

	trig chan struct{}
	dgo  chan struct{}
}

func newSim() *sim {
	return &sim{
		trig: make(chan struct{}, 16),
		dgo:  make(chan struct{}, 16),
	}
}

type simBlock struct {
	s   *sim
	dma bool
}

func (b simBlock) regs() *[32]uint32 {
	if b.dma {
		return &b.s.d
	}
	return &b.s.m
}

func (b simBlock) Load32(o uintptr) uint32 {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.regs()[o/4]
}

func kick(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (b simBlock) Store32(o uintptr, v uint32) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores++
	r := b.regs()
	i := o / 4
	if b.dma {
		switch o {
		case dregs.int_flag.Offset():
			r[i] &^= v
			return
		case dregs.config.Offset():
			if v&dmaCfgGo != 0 {
				s.dmaGos++
				kick(s.dgo)
				// self clearing
				v &^= dmaCfgGo
			}
		}
		r[i] = v
		return
	}
	switch o {
	case mregs.control[0].Offset():
		if v&ctl0SwReset != 0 {
			s.resets++
			*r = [32]uint32{}
			return
		}
	case mregs.control[1].Offset():
		x := v & 0xff
		if v&clrSclHoldTooLong != 0 {
			x |= intSclHoldTooLong
		}
		if v&clrEmpty != 0 {
			x |= intEmpty
		}
		r[mregs.interrupt.Offset()/4] &^= x
	case mregs.control6.Offset():
		r[mregs.status3.Offset()/4] &^= v
	case mregs.mode.Offset():
		if v&modeTrigger != 0 && r[i]&modeTrigger == 0 {
			kick(s.trig)
		}
	case mregs.data[0].Offset():
		if r[mregs.mode.Offset()/4]&modeTrigger != 0 {
			s.fifo = append(s.fifo, v)
		}
	}
	r[i] = v
}

func (s *sim) get(r *hw.U32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[r.Offset()/4]
}

func (s *sim) dget(r *hw.U32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d[r.Offset()/4]
}

// set changes a register without the side effects of a store.
func (s *sim) set(r *hw.U32, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[r.Offset()/4] = v
}

func (s *sim) raise(r *hw.U32, bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[r.Offset()/4] |= bits
}

func (s *sim) draise(bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d[dregs.int_flag.Offset()/4] |= bits
}

func (s *sim) counts() (resets, stores int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets, s.stores
}

func (s *sim) txFifo() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.fifo...)
}

// setData loads received bytes into data register slot.
func (s *sim) setData(slot int, b []byte) {
	var w [4]byte
	copy(w[:], b)
	s.set(&mregs.data[slot%nSlots], binary.LittleEndian.Uint32(w[:]))
}

func (s *sim) waitTrigger(tb testing.TB) {
	tb.Helper()
	select {
	case <-s.trig:
	case <-time.After(time.Second):
		tb.Fatal("no trigger")
	}
}

func (s *sim) waitGo(tb testing.TB) {
	tb.Helper()
	select {
	case <-s.dgo:
	case <-time.After(time.Second):
		tb.Fatal("no dma go")
	}
}

type fakeIRQ struct {
	handler func()
	freed   bool
	err     error
}

func (f *fakeIRQ) Request(h func()) error {
	if f.err != nil {
		return f.err
	}
	f.handler = h
	return nil
}

func (f *fakeIRQ) Free() error {
	f.freed = true
	return nil
}

// noMap is a heap whose caller buffers never map.
type noMap struct{ *dma.Heap }

var errNoMap = errors.New("no iommu")

func (noMap) Map(p []byte, dir dma.Direction) (dma.Region, error) {
	return dma.Region{}, errNoMap
}

type rig struct {
	*sim
	c     *Controller
	irq   *fakeIRQ
	heap  *dma.Heap
	arena []byte
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Timeout = 2 * time.Second
	cfg.DmaTimeout = 2 * time.Second
	return cfg
}

func newRig(tb testing.TB, cfg Config, mapFails bool) *rig {
	tb.Helper()
	r := &rig{
		sim:   newSim(),
		irq:   &fakeIRQ{},
		arena: make([]byte, arenaSize),
	}
	r.heap = dma.NewHeap(r.arena, arenaPhys)
	var mem DMA = r.heap
	if mapFails {
		mem = noMap{r.heap}
	}
	c, err := New(cfg, simBlock{s: r.sim}, simBlock{s: r.sim, dma: true},
		r.irq, mem)
	if err != nil {
		tb.Fatal(err)
	}
	r.c = c
	return r
}

// arenaAt returns the CPU view of device address phys.
func (r *rig) arenaAt(phys uint32) []byte { return r.arena[phys-arenaPhys:] }

func run(f func() error) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- f() }()
	return errc
}

func result(tb testing.TB, errc <-chan error) error {
	tb.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		tb.Fatal("transaction did not return")
	}
	return nil
}

func pending(errc <-chan error) bool {
	select {
	case <-errc:
		return false
	case <-time.After(20 * time.Millisecond):
		return true
	}
}

// respond completes every transaction as the hardware would with no
// slave data.
func (r *rig) respond() (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-r.trig:
				r.raise(&mregs.interrupt, intDone)
				r.c.Interrupt()
			case <-r.dgo:
				r.raise(&mregs.interrupt, intDone)
				r.draise(dmaDone)
				r.c.Interrupt()
			case <-quit:
				return
			}
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}

// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dma manages a physically contiguous, device visible arena.
// Caller memory is never handed to a device directly; Map bounces it
// through an arena chunk.
package dma

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

type Direction int

const (
	ToDevice Direction = iota
	FromDevice
)

var dirStrings = [...]string{
	ToDevice:   "to-device",
	FromDevice: "from-device",
}

func (d Direction) String() string { return dirStrings[d] }

// Allocations are rounded to cache lines.
const Log2Align = 6

var (
	ErrNoSpace   = errors.New("dma heap exhausted")
	ErrZeroSize  = errors.New("zero size dma allocation")
	ErrBadRegion = errors.New("region not from this heap")
)

// Region is a chunk of the arena.
type Region struct {
	Data []byte
	Phys uint32
	off  uint
}

func (r Region) Len() int { return len(r.Data) }

type chunk struct {
	off, n uint
}

type Heap struct {
	mu   sync.Mutex
	data []byte
	phys uint32
	free []chunk // sorted by offset
	used map[uint]uint
}

// NewHeap manages data, the CPU view of an arena located at physical
// address phys.
func NewHeap(data []byte, phys uint32) *Heap {
	h := &Heap{
		data: data,
		phys: phys,
		used: make(map[uint]uint),
	}
	if len(data) > 0 {
		h.free = []chunk{{0, uint(len(data))}}
	}
	return h
}

func roundUp(n uint) uint { return (n + 1<<Log2Align - 1) &^ (1<<Log2Align - 1) }

func (h *Heap) Alloc(n int) (r Region, err error) {
	if n <= 0 {
		err = ErrZeroSize
		return
	}
	want := roundUp(uint(n))
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.free {
		c := &h.free[i]
		if c.n < want {
			continue
		}
		off := c.off
		c.off += want
		c.n -= want
		if c.n == 0 {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.used[off] = want
		r = Region{
			Data: h.data[off : off+uint(n) : off+want],
			Phys: h.phys + uint32(off),
			off:  off,
		}
		return
	}
	err = fmt.Errorf("%w: want %d bytes", ErrNoSpace, n)
	return
}

func (h *Heap) Free(r Region) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.used[r.off]
	if !ok {
		panic(ErrBadRegion)
	}
	delete(h.used, r.off)
	h.free = append(h.free, chunk{r.off, n})
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].off < h.free[j].off })
	// Coalesce neighbors.
	j := 0
	for i := 1; i < len(h.free); i++ {
		if h.free[j].off+h.free[j].n == h.free[i].off {
			h.free[j].n += h.free[i].n
		} else {
			j++
			h.free[j] = h.free[i]
		}
	}
	h.free = h.free[:j+1]
}

// Map returns a device visible copy of p.
func (h *Heap) Map(p []byte, dir Direction) (r Region, err error) {
	if r, err = h.Alloc(len(p)); err != nil {
		return
	}
	if dir == ToDevice {
		copy(r.Data, p)
	}
	return
}

// Unmap releases a region obtained from Map, first copying device
// written data back into p.
func (h *Heap) Unmap(r Region, p []byte, dir Direction) {
	if dir == FromDevice {
		copy(p, r.Data)
	}
	h.Free(r)
}

// Usage returns bytes in use.
func (h *Heap) Usage() (n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, x := range h.used {
		n += int(x)
	}
	return
}

func (h *Heap) String() string {
	return fmt.Sprintf("dma heap: %d/%d bytes used, %d free chunks",
		h.Usage(), len(h.data), len(h.free))
}

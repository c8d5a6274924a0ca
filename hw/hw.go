// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Memory mapped register read/write
package hw

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// Block is a window of 32 bit registers addressed by byte offset.
type Block interface {
	Load32(offset uintptr) uint32
	Store32(offset uintptr, v uint32)
}

// Register structs are laid over BasePointer to compute offsets; it must
// point to readable memory since compiler may perform read probes (nil
// checks) as part of memory addressing.  Nothing is ever stored there.
var (
	BasePointer = unsafe.Pointer(&base[0])
	BaseAddress = uintptr(BasePointer)
)

var base [1 << 10]uint32

// MaxBlockBytes bounds the size of a register struct overlaid on
// BasePointer.
const MaxBlockBytes = uintptr(len(base) * 4)

func CheckRegAddr(name string, got, want uint) {
	if got != want {
		panic(fmt.Errorf("%s got 0x%x != want 0x%x", name, got, want))
	}
}

// Generic 32 bit register
type U32 uint32

// Byte offset
func (r *U32) Offset() uintptr { return uintptr(unsafe.Pointer(r)) - BaseAddress }

func (r *U32) Get(b Block) uint32    { return b.Load32(r.Offset()) }
func (r *U32) Set(b Block, x uint32) { b.Store32(r.Offset(), x) }

// Update clears then sets the given bits with a read-modify-write.
func (r *U32) Update(b Block, clear, set uint32) {
	x := r.Get(b)
	r.Set(b, x&^clear|set)
}

// Pulse sets then clears bits, for strobes that act on the rising edge.
func (r *U32) Pulse(b Block, bits uint32) {
	r.Update(b, 0, bits)
	r.Update(b, bits, 0)
}

// Mem is an mmap'd register window.
type Mem []byte

func (m Mem) word(o uintptr) *uint32 {
	if o&3 != 0 || o+4 > uintptr(len(m)) {
		panic(fmt.Errorf("register offset 0x%x out of range", o))
	}
	return (*uint32)(unsafe.Pointer(&m[o]))
}

func (m Mem) Load32(o uintptr) uint32     { return atomic.LoadUint32(m.word(o)) }
func (m Mem) Store32(o uintptr, v uint32) { atomic.StoreUint32(m.word(o), v) }

// Map maps size bytes at offset of the named device file.
func Map(path string, offset int64, size int) (m Mem, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return
	}
	defer f.Close()
	b, err := syscall.Mmap(int(f.Fd()), offset, size,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		err = fmt.Errorf("mmap %s: %w", path, err)
		return
	}
	m = Mem(b)
	return
}

func Unmap(m Mem) error { return syscall.Munmap(m) }

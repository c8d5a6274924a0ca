// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uio drives a platform device exported by the Linux userspace I/O
// framework: register windows are mmap'd from /dev/uioN and each interrupt
// completes a blocking 4 byte read.
package uio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/platinasystems/i2cm/hw"
	"github.com/platinasystems/log"
)

var ErrAlreadyRequested = errors.New("irq already requested")

type Device struct {
	Minor int

	f *os.File

	mu      sync.Mutex
	handler func()
	done    chan struct{}
	maps    []hw.Mem
}

// Open /dev/uioN.
func Open(minor int) (d *Device, err error) {
	path := fmt.Sprintf("/dev/uio%d", minor)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		err = fmt.Errorf("open %s: %w", path, err)
		return
	}
	d = &Device{Minor: minor, f: f}
	return
}

func (d *Device) String() string { return fmt.Sprintf("uio%d", d.Minor) }

func (d *Device) sysfsPath(args ...string) string {
	return "/sys/class/uio/" + d.String() + "/" + strings.Join(args, "/")
}

func sysfsUint(path string) (v uint64, err error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
}

// MapInfo returns the physical address and size of map index.
func (d *Device) MapInfo(index int) (addr, size uint64, err error) {
	dir := fmt.Sprintf("maps/map%d", index)
	if addr, err = sysfsUint(d.sysfsPath(dir, "addr")); err != nil {
		return
	}
	size, err = sysfsUint(d.sysfsPath(dir, "size"))
	return
}

// Map mmaps register window index.  UIO selects the window with the mmap
// offset: index times the page size.
func (d *Device) Map(index int) (m hw.Mem, err error) {
	_, size, err := d.MapInfo(index)
	if err != nil {
		return
	}
	b, err := syscall.Mmap(int(d.f.Fd()), int64(index*os.Getpagesize()),
		int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		err = fmt.Errorf("%s: mmap map%d: %w", d, index, err)
		return
	}
	m = hw.Mem(b)
	d.mu.Lock()
	d.maps = append(d.maps, m)
	d.mu.Unlock()
	return
}

func (d *Device) enable(on bool) error {
	var b [4]byte
	if on {
		binary.LittleEndian.PutUint32(b[:], 1)
	}
	_, err := d.f.Write(b[:])
	return err
}

// Request starts delivering interrupts to handler.  Handler runs on a
// dedicated goroutine, one interrupt at a time.
func (d *Device) Request(handler func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler != nil {
		return ErrAlreadyRequested
	}
	if err := d.enable(true); err != nil {
		return fmt.Errorf("%s: enable irq: %w", d, err)
	}
	d.handler = handler
	if d.done == nil {
		d.done = make(chan struct{})
		go d.listen(d.done)
	}
	return nil
}

func (d *Device) requested() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

func (d *Device) listen(done chan struct{}) {
	defer func() {
		d.mu.Lock()
		if d.done == done {
			d.done = nil
		}
		d.mu.Unlock()
		close(done)
	}()
	var b [4]byte
	for {
		if _, err := d.f.Read(b[:]); err != nil {
			if !errors.Is(err, os.ErrClosed) {
				log.Print("daemon", "err", d, ": irq: ", err)
			}
			return
		}
		h := d.requested()
		if h == nil {
			continue
		}
		h()
		d.mu.Lock()
		var err error
		if d.handler != nil {
			err = d.enable(true)
		}
		d.mu.Unlock()
		if err != nil {
			log.Print("daemon", "err", d, ": irq enable: ", err)
			return
		}
	}
}

// Free masks the interrupt.  A listener woken after Free drops the
// interrupt and leaves the line masked.
func (d *Device) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		return nil
	}
	d.handler = nil
	return d.enable(false)
}

// Close masks the interrupt, waits for the listener to exit, then unmaps
// the register windows.
func (d *Device) Close() (err error) {
	d.Free()
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	err = d.f.Close()
	if done != nil {
		<-done
	}
	d.mu.Lock()
	maps := d.maps
	d.maps = nil
	d.mu.Unlock()
	for _, m := range maps {
		hw.Unmap(m)
	}
	return
}

// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"bytes"
	"errors"
	"testing"
)

func TestAllocAligned(t *testing.T) {
	h := NewHeap(make([]byte, 4096), 0x1000_0000)
	a, err := h.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 10 || b.Len() != 100 {
		t.Errorf("lengths %d %d", a.Len(), b.Len())
	}
	if a.Phys != 0x1000_0000 {
		t.Errorf("a.Phys 0x%x", a.Phys)
	}
	if b.Phys != 0x1000_0000+1<<Log2Align {
		t.Errorf("b.Phys 0x%x", b.Phys)
	}
	if got, want := h.Usage(), 64+128; got != want {
		t.Errorf("usage %d want %d", got, want)
	}
}

func TestExhausted(t *testing.T) {
	h := NewHeap(make([]byte, 256), 0)
	if _, err := h.Alloc(200); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Alloc(64); !errors.Is(err, ErrNoSpace) {
		t.Errorf("got %v want ErrNoSpace", err)
	}
	if _, err := h.Alloc(0); err != ErrZeroSize {
		t.Errorf("got %v want ErrZeroSize", err)
	}
}

func TestFreeCoalesce(t *testing.T) {
	h := NewHeap(make([]byte, 256), 0)
	var rs []Region
	for i := 0; i < 4; i++ {
		r, err := h.Alloc(64)
		if err != nil {
			t.Fatal(err)
		}
		rs = append(rs, r)
	}
	for _, i := range []int{1, 3, 0, 2} {
		h.Free(rs[i])
	}
	if len(h.free) != 1 || h.free[0] != (chunk{0, 256}) {
		t.Fatalf("free list %v", h.free)
	}
	if _, err := h.Alloc(256); err != nil {
		t.Error(err)
	}
}

func TestMapUnmap(t *testing.T) {
	h := NewHeap(make([]byte, 1024), 0)
	src := []byte("hello, device")
	r, err := h.Map(src, ToDevice)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r.Data, src) {
		t.Errorf("mapped %q", r.Data)
	}
	h.Unmap(r, src, ToDevice)

	dst := make([]byte, 5)
	r, err = h.Map(dst, FromDevice)
	if err != nil {
		t.Fatal(err)
	}
	copy(r.Data, "abcde")
	h.Unmap(r, dst, FromDevice)
	if string(dst) != "abcde" {
		t.Errorf("unmapped %q", dst)
	}
	if h.Usage() != 0 {
		t.Errorf("leak %d", h.Usage())
	}
}

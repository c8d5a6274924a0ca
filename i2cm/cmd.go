// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import (
	"fmt"
	"strings"
)

// Cmd describes one transaction. The core only reads it; Read is filled in
// place.
type Cmd struct {
	// Device index.
	Dev int
	// Bus clock in kHz; 0 selects Config.Freq.
	Freq uint32
	// 7 bit slave address.
	Addr uint16
	// Write is sent, then a repeated start, then Read is received.
	Restart bool
	Write   []byte
	Read    []byte
}

type Phase int

const (
	Idle Phase = iota
	WritePhase
	ReadPhase
	DmaWritePhase
	DmaReadPhase
)

var phaseStrings = [...]string{
	Idle:          "idle",
	WritePhase:    "write",
	ReadPhase:     "read",
	DmaWritePhase: "dma write",
	DmaReadPhase:  "dma read",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseStrings) {
		return phaseStrings[p]
	}
	return fmt.Sprintf("phase %d", int(p))
}

func (p Phase) isWrite() bool { return p == WritePhase || p == DmaWritePhase }
func (p Phase) isDma() bool   { return p == DmaWritePhase || p == DmaReadPhase }

// IrqFlags is the decoded master interrupt status.
type IrqFlags struct {
	ActiveDone     bool
	AddrNack       bool
	DataNack       bool
	EmptyThreshold bool
	FifoEmpty      bool
	FifoFull       bool
	SclHoldTooLong bool
	ReadOverflow   bool
}

func decodeIrq(x, overflow uint32) IrqFlags {
	return IrqFlags{
		ActiveDone:     x&intDone != 0,
		AddrNack:       x&intAddressNack != 0,
		DataNack:       x&intDataNack != 0,
		EmptyThreshold: x&intEmptyThreshold != 0,
		FifoEmpty:      x&intEmpty != 0,
		FifoFull:       x&intFull != 0,
		SclHoldTooLong: x&intSclHoldTooLong != 0,
		ReadOverflow:   overflow != 0,
	}
}

func (f IrqFlags) String() string {
	return flagString([]flagName{
		{f.ActiveDone, "done"},
		{f.AddrNack, "addr-nack"},
		{f.DataNack, "data-nack"},
		{f.EmptyThreshold, "empty-threshold"},
		{f.FifoEmpty, "empty"},
		{f.FifoFull, "full"},
		{f.SclHoldTooLong, "scl-hold"},
		{f.ReadOverflow, "overflow"},
	})
}

// DmaFlags is the decoded DMA engine status.
type DmaFlags struct {
	Done                 bool
	WriteCountError      bool
	WriteByteEnableError bool
	GdmaTimeout          bool
	IPTimeout            bool
	Threshold            bool
	Length0              bool
}

func decodeDma(x uint32) DmaFlags {
	return DmaFlags{
		Done:                 x&dmaDone != 0,
		WriteCountError:      x&dmaWcntError != 0,
		WriteByteEnableError: x&dmaWbEnError != 0,
		GdmaTimeout:          x&dmaGdmaTimeout != 0,
		IPTimeout:            x&dmaIPTimeout != 0,
		Threshold:            x&dmaThreshold != 0,
		Length0:              x&dmaLength0 != 0,
	}
}

// Fault reports any engine error flag.
func (f DmaFlags) Fault() bool {
	return f.WriteCountError || f.WriteByteEnableError ||
		f.GdmaTimeout || f.IPTimeout || f.Length0
}

func (f DmaFlags) String() string {
	return flagString([]flagName{
		{f.Done, "done"},
		{f.WriteCountError, "wcnt-error"},
		{f.WriteByteEnableError, "wb-en-error"},
		{f.GdmaTimeout, "gdma-timeout"},
		{f.IPTimeout, "ip-timeout"},
		{f.Threshold, "threshold"},
		{f.Length0, "length0"},
	})
}

type flagName struct {
	set  bool
	name string
}

func flagString(fs []flagName) string {
	var names []string
	for _, f := range fs {
		if f.set {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Progress is the state of the in-flight transaction.
type Progress struct {
	Phase Phase
	Irq   IrqFlags
	Dma   DmaFlags
	Dev   int

	// Burst units left to move.
	Burst int
	// Read bytes drained after active done.
	Remainder int
	// Byte offset into Buf.
	Offset int
	// Next data register for burst reads.
	Slot   Slot
	Length int
	Busy   bool
	Result Status

	Buf []byte
}

func (p *Progress) String() string {
	return fmt.Sprintf("%s dev %d burst %d rem %d off %d/%d slot %d irq %s dma %s: %s",
		p.Phase, p.Dev, p.Burst, p.Remainder, p.Offset, p.Length, p.Slot,
		p.Irq, p.Dma, p.Result)
}

// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import (
	"encoding/binary"
	"time"
	"unsafe"

	"github.com/platinasystems/i2cm/hw"
)

// Master transaction registers.
type masterRegs struct {
	control [6]hw.U32

	status0 hw.U32

	interrupt hw.U32

	int_en0 hw.U32

	mode hw.U32

	status1 hw.U32
	status2 hw.U32

	control6 hw.U32

	int_en1 hw.U32

	// Burst read data ready, one bit per received byte.
	status3 hw.U32

	// Burst read data overflow.
	status4 hw.U32

	int_en2 hw.U32

	control7 hw.U32
	control8 hw.U32
	control9 hw.U32

	_ [0x5c - 0x50]byte

	version hw.U32

	data [nSlots]hw.U32
}

// DMA engine registers.
type dmaRegs struct {
	hw_version hw.U32
	config     hw.U32
	length     hw.U32
	addr       hw.U32
	port_mux   hw.U32
	int_flag   hw.U32
	int_en     hw.U32

	sw_reset_state hw.U32

	_ [0x28 - 0x20]byte

	sg_index  hw.U32
	sg_config hw.U32
	sg_length hw.U32
	sg_addr   hw.U32

	_ [0x3c - 0x38]byte

	sg_setting hw.U32
	threshold  hw.U32

	_ [0x48 - 0x44]byte

	gdma_read_timeout  hw.U32
	gdma_write_timeout hw.U32
	ip_read_timeout    hw.U32
	ip_write_timeout   hw.U32

	write_cnt_debug          hw.U32
	w_byte_en_debug          hw.U32
	sw_reset_write_cnt_debug hw.U32

	_ [0x80 - 0x64]byte
}

var (
	mregs = (*masterRegs)(hw.BasePointer)
	dregs = (*dmaRegs)(hw.BasePointer)
)

func init() {
	off := func(r *hw.U32) uint { return uint(r.Offset()) }
	hw.CheckRegAddr("interrupt", off(&mregs.interrupt), 0x1c)
	hw.CheckRegAddr("control6", off(&mregs.control6), 0x30)
	hw.CheckRegAddr("int_en2", off(&mregs.int_en2), 0x40)
	hw.CheckRegAddr("control7", off(&mregs.control7), 0x44)
	hw.CheckRegAddr("version", off(&mregs.version), 0x5c)
	hw.CheckRegAddr("data[0]", off(&mregs.data[0]), 0x60)
	hw.CheckRegAddr("master size", uint(unsafe.Sizeof(*mregs)), 0x80)
	hw.CheckRegAddr("dma int_flag", off(&dregs.int_flag), 0x14)
	hw.CheckRegAddr("dma sg_index", off(&dregs.sg_index), 0x28)
	hw.CheckRegAddr("dma threshold", off(&dregs.threshold), 0x40)
	hw.CheckRegAddr("dma gdma_read_timeout", off(&dregs.gdma_read_timeout), 0x48)
	hw.CheckRegAddr("dma size", uint(unsafe.Sizeof(*dregs)), 0x80)
}

// control0
const (
	ctl0FreqShift   = 24 // [26:24]
	ctl0FreqMask    = 0x7 << ctl0FreqShift
	ctl0Prefetch    = 1 << 18 // read mode
	ctl0RestartEn   = 1 << 17
	ctl0SubaddrEn   = 1 << 16 // restart mode
	ctl0SwReset     = 1 << 15
	ctl0AddrShift   = 1 // [7:1]
	ctl0AddrMask    = 0x7f << ctl0AddrShift
	ctl0RwModeMask  = ctl0Prefetch | ctl0RestartEn | ctl0SubaddrEn
	slaveAddrMask   = 0x7f
	resetSettleTime = 2 * time.Microsecond
)

// control1 flag clear strobes.
const (
	clrEmpty          = 1 << 9
	clrSclHoldTooLong = 1 << 8
	clrSclWait        = 1 << 7
	clrEmptyThreshold = 1 << 6
	clrDataNack       = 1 << 5
	clrAddressNack    = 1 << 4
	clrBusy           = 1 << 3
	clrClkErr         = 1 << 2
	clrDone           = 1 << 1
	clrSifBusy        = 1 << 0
	clrAll            = 0x3ff
)

// control2
const (
	ctl2FreqMask       = 0x7ff // [10:0]
	ctl2SclDelayShift  = 24    // [25:24]
	ctl2SclDelayMask   = 0x3 << ctl2SclDelayShift
	ctl2SdaHalfEnable  = 1 << 31
	ctl7ReadCountShift = 16
	ctl7CountMask      = 0xffff
)

// interrupt flags
const (
	intRincIndexShift = 18 // [20:18]
	intWincIndexShift = 15 // [17:15]
	intSclHoldTooLong = 1 << 11
	intWfifoEnable    = 1 << 10
	intFull           = 1 << 9
	intEmpty          = 1 << 8
	intSclWait        = 1 << 7
	intEmptyThreshold = 1 << 6
	intDataNack       = 1 << 5
	intAddressNack    = 1 << 4
	intBusy           = 1 << 3
	intClkErr         = 1 << 2
	intDone           = 1 << 1
	intSifBusy        = 1 << 0
)

// int_en0
const (
	en0SclHoldTooLong      = 1 << 13
	en0Nack                = 1 << 12
	en0EmptyThresholdShift = 9 // [11:9]
	en0EmptyThresholdMask  = 0x7
	en0Empty               = 1 << 8
	en0SclWait             = 1 << 7
	en0EmptyThreshold      = 1 << 6
	en0DataNack            = 1 << 5
	en0AddressNack         = 1 << 4
	en0Busy                = 1 << 3
	en0ClkErr              = 1 << 2
	en0Done                = 1 << 1
	en0SifBusy             = 1 << 0

	en0Transfer = en0SclHoldTooLong | en0Empty | en0DataNack | en0AddressNack | en0Done
)

// i2cm mode
const (
	modeDma     = 1 << 2
	modeAuto    = 1 << 1 // 0 is trigger mode
	modeTrigger = 1 << 0
)

// burst read interrupt enables
const (
	en1Burst16     = 0x80008000
	en1Burst4      = 0x88888888
	en2OverflowAll = 0xffffffff
)

// dma config
const (
	dmaCfgGo         = 1 << 8
	dmaCfgNonBufMode = 1 << 2
	dmaCfgSameSlave  = 1 << 1
	// Set: engine reads from the controller and writes memory.
	dmaCfgDevToMem = 1 << 0
)

// dma interrupt flags and enables share bit positions.
const (
	dmaLength0     = 1 << 6
	dmaThreshold   = 1 << 5
	dmaIPTimeout   = 1 << 4
	dmaGdmaTimeout = 1 << 3
	dmaWbEnError   = 1 << 2
	dmaWcntError   = 1 << 1
	dmaDone        = 1 << 0
	dmaAll         = 0x7f
	dmaLengthMask  = 0xffff
)

// Divisor returns the control2 clock divider for freq given source clock
// src, both in kHz.
func Divisor(src, freq uint32) uint32 {
	div := (src+freq-1)/freq - 1
	if div > ctl2FreqMask {
		div = ctl2FreqMask
	}
	return div
}

type rwMode int

const (
	writeMode rwMode = iota
	readMode
	restartMode
)

type activeMode int

const (
	triggerMode activeMode = iota
	autoMode
)

// Register level operations on one controller's blocks.
type regs struct {
	m, d hw.Block
}

func (r regs) reset() {
	mregs.control[0].Update(r.m, 0, ctl0SwReset)
	time.Sleep(resetSettleTime)
}

func (r regs) statusClear(flags uint32) { mregs.control[1].Pulse(r.m, flags) }

func (r regs) setClock(src, freq uint32) {
	mregs.control[0].Update(r.m, ctl0FreqMask, 0)
	mregs.control[2].Update(r.m, ctl2FreqMask, Divisor(src, freq))
}

func (r regs) setSclDelay(delay uint32) {
	mregs.control[2].Update(r.m, ctl2SclDelayMask|ctl2SdaHalfEnable,
		delay<<ctl2SclDelayShift&ctl2SclDelayMask)
}

func (r regs) setSlaveAddr(addr uint16) {
	mregs.control[0].Update(r.m, ctl0AddrMask,
		uint32(addr&slaveAddrMask)<<ctl0AddrShift)
}

func (r regs) setCounts(write, read int) {
	mregs.control7.Set(r.m, uint32(write)&ctl7CountMask|
		(uint32(read)&ctl7CountMask)<<ctl7ReadCountShift)
}

func (r regs) setActiveMode(m activeMode) {
	var set uint32
	if m == autoMode {
		set = modeAuto
	}
	mregs.mode.Update(r.m, modeAuto|modeTrigger, set)
}

func (r regs) trigger()       { mregs.mode.Update(r.m, 0, modeTrigger) }
func (r regs) enableDmaMode() { mregs.mode.Update(r.m, 0, modeDma) }

func (r regs) setRwMode(m rwMode) {
	var set uint32
	switch m {
	case readMode:
		set = ctl0Prefetch
	case restartMode:
		set = ctl0RwModeMask
	}
	mregs.control[0].Update(r.m, ctl0RwModeMask, set)
}

func (r regs) setIntEnables(en0, en1, en2 uint32) {
	mregs.int_en0.Set(r.m, en0)
	mregs.int_en1.Set(r.m, en1)
	mregs.int_en2.Set(r.m, en2)
}

func (r regs) setIntEnable0Threshold(en0, threshold uint32) {
	mregs.int_en0.Set(r.m, en0|(threshold&en0EmptyThresholdMask)<<en0EmptyThresholdShift)
}

func (r regs) disableInt0(bits uint32) { mregs.int_en0.Update(r.m, bits, 0) }

// loadData fills all eight data registers with up to 32 bytes of p,
// zero padded.
func (r regs) loadData(p []byte) {
	var b [burstBytes]byte
	copy(b[:], p)
	for i := range mregs.data {
		mregs.data[i].Set(r.m, binary.LittleEndian.Uint32(b[4*i:]))
	}
}

// pushWord writes one word to the transmit fifo port.
func (r regs) pushWord(b []byte) { mregs.data[0].Set(r.m, binary.LittleEndian.Uint32(b)) }

func (r regs) readSlot(s Slot, b []byte) {
	binary.LittleEndian.PutUint32(b, mregs.data[s].Get(r.m))
}

func (r regs) interruptFlags() uint32  { return mregs.interrupt.Get(r.m) }
func (r regs) overflowFlags() uint32   { return mregs.status4.Get(r.m) }
func (r regs) burstReadyFlags() uint32 { return mregs.status3.Get(r.m) }

func (r regs) burstReadyClear(flags uint32) {
	mregs.control6.Set(r.m, flags)
	mregs.control6.Set(r.m, 0)
}

func (r regs) dmaSetup(addr uint32, n int, devToMem bool) {
	dregs.addr.Set(r.d, addr)
	dregs.length.Set(r.d, uint32(n)&dmaLengthMask)
	var set uint32
	if devToMem {
		set = dmaCfgDevToMem
	}
	dregs.config.Update(r.d, dmaCfgDevToMem, set)
	dregs.int_en.Set(r.d, dmaDone)
}

func (r regs) dmaGo() { dregs.config.Update(r.d, 0, dmaCfgGo) }

// dmaFlags reads and acknowledges (write 1 to clear) engine status.
func (r regs) dmaFlags() uint32 {
	x := dregs.int_flag.Get(r.d)
	dregs.int_flag.Update(r.d, 0, dmaAll)
	return x
}

func (r regs) version() uint32 { return mregs.version.Get(r.m) }

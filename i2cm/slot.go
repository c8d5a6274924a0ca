// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

const (
	nSlots     = 8
	burstBytes = 4 * nSlots
)

// Slot indexes the data register file; arithmetic wraps modulo nSlots.
type Slot uint8

func (s Slot) add(n int) Slot {
	return Slot((int(s) + n%nSlots + nSlots) % nSlots)
}

func (s Slot) next() Slot { return s.add(1) }

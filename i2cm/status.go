// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package i2cm

import "fmt"

// Status is the result of one transaction.
type Status int

const (
	Ok Status = iota
	Busy
	InvalidDevice
	InvalidCount
	Timeout
	RemoteNack
	ClockHeldTooLong
	FifoEmpty
	ReadOverflow
	IrqRegistrationFailed
	nStatus
)

var statusStrings = [...]string{
	Ok:                    "ok",
	Busy:                  "controller busy",
	InvalidDevice:         "invalid device",
	InvalidCount:          "invalid count",
	Timeout:               "timeout",
	RemoteNack:            "remote nack",
	ClockHeldTooLong:      "clock held too long",
	FifoEmpty:             "fifo empty",
	ReadOverflow:          "read overflow",
	IrqRegistrationFailed: "irq registration failed",
}

var (
	ErrBusy                  = Busy.ToError()
	ErrInvalidDevice         = InvalidDevice.ToError()
	ErrInvalidCount          = InvalidCount.ToError()
	ErrTimeout               = Timeout.ToError()
	ErrRemoteNack            = RemoteNack.ToError()
	ErrClockHeldTooLong      = ClockHeldTooLong.ToError()
	ErrFifoEmpty             = FifoEmpty.ToError()
	ErrReadOverflow          = ReadOverflow.ToError()
	ErrIrqRegistrationFailed = IrqRegistrationFailed.ToError()
)

func (x Status) ToError() error {
	if x == Ok {
		return nil
	}
	return x
}

func (x Status) String() string {
	if x >= 0 && x < nStatus {
		return statusStrings[x]
	}
	return fmt.Sprintf("status %d", int(x))
}

func (x Status) Error() string { return "i2cm: " + x.String() }

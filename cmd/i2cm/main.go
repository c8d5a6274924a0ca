// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The i2cm command runs one transfer on a UIO exposed I2C master.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/jpillora/backoff"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/i2cm/hw/dma"
	"github.com/platinasystems/i2cm/hw/uio"
	"github.com/platinasystems/i2cm/i2cm"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
)

const Usage = `i2cm [-dma | -pio] [-v] [-uio N] [-dev N] [-freq KHZ] [-timeout DURATION]
	[-retries N] [-read N] [-publish HOST:PORT] ADDRESS [BYTE]...`

const Man = `
DESCRIPTION
	Write the given BYTEs to the 7 bit slave ADDRESS, then read -read N
	bytes with a repeated start.  Read data is dumped in hex on a
	terminal, written raw otherwise.

	-uio N		/dev/uioN exposing the master, DMA and memory maps
			(default 0)
	-dev N		controller index (default 0)
	-freq KHZ	bus clock (default 400)
	-timeout D	register transfer timeout (default 400ms)
	-retries N	retry NACK and timeout N times with backoff
	-publish A	HSET transfer counts in redis at A
	-dma		force the DMA path
	-pio		force the register path
	-v		debug log`

// Map indexes of the UIO device.
const (
	mapMaster = iota
	mapDma
	mapMemory
)

type Command struct{}

func (Command) String() string { return "i2cm" }
func (Command) Usage() string  { return Usage }

func parseUint(parm map[string]string, name string, def uint64, bits int) (uint64, error) {
	s := parm[name]
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", name, err)
	}
	return v, nil
}

func (Command) Main(args ...string) (err error) {
	flag, args := flags.New(args, "-dma", "-pio", "-v")
	parm, args := parms.New(args, "-uio", "-dev", "-freq", "-timeout",
		"-retries", "-read", "-publish")
	if len(args) == 0 {
		return fmt.Errorf("ADDRESS: missing")
	}
	if flag.ByName["-dma"] && flag.ByName["-pio"] {
		return fmt.Errorf("-dma and -pio are exclusive")
	}
	addr, err := strconv.ParseUint(args[0], 0, 7)
	if err != nil {
		return fmt.Errorf("%s: %v", args[0], err)
	}
	w := make([]byte, 0, len(args)-1)
	for _, arg := range args[1:] {
		b, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return fmt.Errorf("%s: %v", arg, err)
		}
		w = append(w, byte(b))
	}

	var minor, dev, freq, retries, nread uint64
	for _, x := range []struct {
		v    *uint64
		name string
		def  uint64
		bits int
	}{
		{&minor, "-uio", 0, 16},
		{&dev, "-dev", 0, 8},
		{&freq, "-freq", 400, 32},
		{&retries, "-retries", 0, 8},
		{&nread, "-read", 0, 16},
	} {
		if *x.v, err = parseUint(parm.ByName, x.name, x.def, x.bits); err != nil {
			return
		}
	}

	cfg := i2cm.DefaultConfig()
	if s := parm.ByName["-timeout"]; s != "" {
		if cfg.Timeout, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("-timeout: %v", err)
		}
	}
	cfg.Dev = int(dev)
	cfg.Freq = uint32(freq)
	cfg.Debug = flag.ByName["-v"]

	d, err := uio.Open(int(minor))
	if err != nil {
		return
	}
	defer d.Close()
	cfg.Name = d.String()

	c, err := attach(cfg, d)
	if err != nil {
		return
	}
	defer c.Close()

	r := make([]byte, nread)
	tx := func() error { return c.Tx(uint16(addr), w, r) }
	switch {
	case flag.ByName["-dma"]:
		tx = func() error { return forced(c.DmaWrite, c.DmaRead, cfg.Dev, addr, w, r) }
	case flag.ByName["-pio"]:
		tx = func() error { return forced(c.Write, c.Read, cfg.Dev, addr, w, r) }
	}
	err = retry(int(retries), tx)

	if s := parm.ByName["-publish"]; s != "" {
		if perr := publish(s, "i2cm."+d.String(), c.Stats()); perr != nil {
			log.Print("daemon", "err", "publish: ", perr)
		}
	}
	if err != nil || len(r) == 0 {
		return
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print(hex.Dump(r))
	} else {
		_, err = os.Stdout.Write(r)
	}
	return
}

func attach(cfg i2cm.Config, d *uio.Device) (*i2cm.Controller, error) {
	m, err := d.Map(mapMaster)
	if err != nil {
		return nil, err
	}
	dm, err := d.Map(mapDma)
	if err != nil {
		return nil, err
	}
	mem, err := d.Map(mapMemory)
	if err != nil {
		return nil, err
	}
	phys, _, err := d.MapInfo(mapMemory)
	if err != nil {
		return nil, err
	}
	return i2cm.New(cfg, m, dm, d, dma.NewHeap(mem, uint32(phys)))
}

// forced runs the transfer on one path: write alone, or read with the
// write as repeated start prefix.
func forced(write, read func(*i2cm.Cmd) error, dev int, addr uint64, w, r []byte) error {
	cmd := &i2cm.Cmd{Dev: dev, Addr: uint16(addr), Write: w, Read: r}
	if len(r) == 0 {
		return write(cmd)
	}
	cmd.Restart = len(w) > 0
	return read(cmd)
}

func retriable(err error) bool {
	return errors.Is(err, i2cm.ErrRemoteNack) || errors.Is(err, i2cm.ErrTimeout)
}

// retry runs tx until it succeeds, fails otherwise, or has been retried
// n times.
func retry(n int, tx func() error) (err error) {
	b := &backoff.Backoff{
		Min:    10 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		err = tx()
		if err == nil || !retriable(err) || int(b.Attempt()) >= n {
			return
		}
		delay := b.Duration()
		log.Print("daemon", "warn", err, ", retry in ", delay)
		time.Sleep(delay)
	}
}

func publish(addr, key string, st i2cm.Stats) error {
	conn, err := redis.Dial("tcp", addr,
		redis.DialConnectTimeout(time.Second),
		redis.DialWriteTimeout(time.Second),
		redis.DialReadTimeout(time.Second))
	if err != nil {
		return err
	}
	defer conn.Close()
	st.ForEach(func(s i2cm.Status, n uint64) {
		conn.Send("HSET", key, s.String(), n)
	})
	_, err = conn.Do("")
	return err
}

func main() {
	if err := (Command{}).Main(os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, "i2cm:", err)
		os.Exit(1)
	}
}

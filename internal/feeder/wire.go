// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package feeder implements the route-feeder wire protocol spec.md §6
// describes only by its interface: a length-prefixed, sequence-
// numbered binary message stream, here carried over any net.Conn
// (including a net.UnixConn, the transport spec.md names). There is
// no corpus dependency for this: it is a bespoke framing, not a
// serialization format any pack dependency already speaks, so this
// stays on encoding/binary plus net/netip's own binary marshaling
// (Addr.MarshalBinary/UnmarshalBinary), the same way the rest of this
// module avoids hand-rolled address byte-packing.
package feeder

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// encoder builds one message payload.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *encoder) bytes(b []byte) {
	e.u16(uint16(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) { e.bytes([]byte(s)) }

func (e *encoder) addr(a netip.Addr) error {
	b, err := a.MarshalBinary()
	if err != nil {
		return fmt.Errorf("feeder: encoding address: %w", err)
	}
	e.bytes(b)
	return nil
}

func (e *encoder) prefix(p netip.Prefix) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("feeder: encoding prefix: %w", err)
	}
	e.bytes(b)
	return nil
}

// optAddr encodes a presence byte followed by the address when present.
func (e *encoder) optAddr(a *netip.Addr) error {
	if a == nil {
		e.u8(0)
		return nil
	}
	e.u8(1)
	return e.addr(*a)
}

func (e *encoder) optU32(v *uint32) {
	if v == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.u32(*v)
}

// decoder walks one message payload.
type decoder struct {
	buf []byte
	off int
}

func newDecoder(buf []byte) *decoder { return &decoder{buf: buf} }

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) need(n int) error {
	if d.remaining() < n {
		return fmt.Errorf("feeder: truncated message: need %d bytes, have %d", n, d.remaining())
	}
	return nil
}

func (d *decoder) u8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) addr() (netip.Addr, error) {
	b, err := d.bytes()
	if err != nil {
		return netip.Addr{}, err
	}
	var a netip.Addr
	if err := a.UnmarshalBinary(b); err != nil {
		return netip.Addr{}, fmt.Errorf("feeder: decoding address: %w", err)
	}
	return a, nil
}

func (d *decoder) prefix() (netip.Prefix, error) {
	b, err := d.bytes()
	if err != nil {
		return netip.Prefix{}, err
	}
	var p netip.Prefix
	if err := p.UnmarshalBinary(b); err != nil {
		return netip.Prefix{}, fmt.Errorf("feeder: decoding prefix: %w", err)
	}
	return p, nil
}

func (d *decoder) optAddr() (*netip.Addr, error) {
	present, err := d.u8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	a, err := d.addr()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *decoder) optU32() (*uint32, error) {
	present, err := d.u8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := d.u32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *decoder) done() error {
	if d.remaining() != 0 {
		return fmt.Errorf("feeder: %d trailing bytes in message", d.remaining())
	}
	return nil
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package feeder

import (
	"fmt"
	"net/netip"

	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/rib"
)

// Version is the three-part protocol version spec.md §6 calls "the
// version triple". The feeder enforces it at Connect time; a mismatch
// fails the handshake and the peer must reconnect.
type Version struct {
	Major, Minor, Patch uint16
}

// CurrentVersion is the version this module's feeder server speaks.
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// OpCode identifies a request's operation.
type OpCode uint8

const (
	OpConnect OpCode = 1 + iota
	OpAddRoute
	OpDelRoute
	OpAddRmac
	OpDelRmac
	OpAddIfAddress
	OpDelIfAddress
	OpGet
)

func (op OpCode) String() string {
	switch op {
	case OpConnect:
		return "Connect"
	case OpAddRoute:
		return "AddRoute"
	case OpDelRoute:
		return "DelRoute"
	case OpAddRmac:
		return "AddRmac"
	case OpDelRmac:
		return "DelRmac"
	case OpAddIfAddress:
		return "AddIfAddress"
	case OpDelIfAddress:
		return "DelIfAddress"
	case OpGet:
		return "Get"
	default:
		return fmt.Sprintf("OpCode(%d)", uint8(op))
	}
}

// Status is the closed set of outcomes spec.md §6 names for every
// response.
type Status uint8

const (
	StatusOk Status = iota
	StatusFailure
	StatusInvalidRequest
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusFailure:
		return "Failure"
	case StatusInvalidRequest:
		return "InvalidRequest"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ConnectRequest is the handshake payload: the peer's protocol
// version. The server's response carries StatusFailure on a version
// mismatch, per spec.md §6.
type ConnectRequest struct {
	Version Version
}

func (r ConnectRequest) encode() []byte {
	e := &encoder{}
	e.u16(r.Version.Major)
	e.u16(r.Version.Minor)
	e.u16(r.Version.Patch)
	return e.buf
}

func decodeConnectRequest(payload []byte) (ConnectRequest, error) {
	d := newDecoder(payload)
	major, err := d.u16()
	if err != nil {
		return ConnectRequest{}, err
	}
	minor, err := d.u16()
	if err != nil {
		return ConnectRequest{}, err
	}
	patch, err := d.u16()
	if err != nil {
		return ConnectRequest{}, err
	}
	if err := d.done(); err != nil {
		return ConnectRequest{}, err
	}
	return ConnectRequest{Version: Version{Major: major, Minor: minor, Patch: patch}}, nil
}

// NextHopSpec is one next-hop in an AddRoute request. Resolvers
// indexes back into the same request's NextHops slice rather than
// into the server's arena, since the arena handle is assigned only
// once the route is installed; the handler allocates arena entries in
// request order and then translates these indices into rib.NextHopIDs
// in a second pass.
type NextHopSpec struct {
	Address   *netip.Addr
	IfIndex   *uint32
	VRF       *uint32
	Encap     *rib.Encapsulation
	Action    rib.ForwardAction
	Resolvers []uint16
}

func (n NextHopSpec) encode(e *encoder) error {
	if err := e.optAddr(n.Address); err != nil {
		return err
	}
	e.optU32(n.IfIndex)
	e.optU32(n.VRF)
	if n.Encap == nil {
		e.u8(0)
	} else {
		e.u8(1)
		e.u8(uint8(n.Encap.Kind))
		e.u32(n.Encap.VNI)
		if err := e.addr(n.Encap.RemoteVTEP); err != nil {
			return err
		}
		e.u32(n.Encap.MPLSLabel)
	}
	e.u8(uint8(n.Action))
	e.u16(uint16(len(n.Resolvers)))
	for _, r := range n.Resolvers {
		e.u16(r)
	}
	return nil
}

func decodeNextHopSpec(d *decoder) (NextHopSpec, error) {
	var n NextHopSpec
	addr, err := d.optAddr()
	if err != nil {
		return n, err
	}
	n.Address = addr
	ifIndex, err := d.optU32()
	if err != nil {
		return n, err
	}
	n.IfIndex = ifIndex
	vrf, err := d.optU32()
	if err != nil {
		return n, err
	}
	n.VRF = vrf
	hasEncap, err := d.u8()
	if err != nil {
		return n, err
	}
	if hasEncap != 0 {
		kind, err := d.u8()
		if err != nil {
			return n, err
		}
		vni, err := d.u32()
		if err != nil {
			return n, err
		}
		remote, err := d.addr()
		if err != nil {
			return n, err
		}
		label, err := d.u32()
		if err != nil {
			return n, err
		}
		n.Encap = &rib.Encapsulation{Kind: rib.EncapKind(kind), VNI: vni, RemoteVTEP: remote, MPLSLabel: label}
	}
	action, err := d.u8()
	if err != nil {
		return n, err
	}
	n.Action = rib.ForwardAction(action)
	count, err := d.u16()
	if err != nil {
		return n, err
	}
	n.Resolvers = make([]uint16, count)
	for i := range n.Resolvers {
		r, err := d.u16()
		if err != nil {
			return n, err
		}
		n.Resolvers[i] = r
	}
	return n, nil
}

// AddRouteRequest installs or replaces a route in one VRF.
type AddRouteRequest struct {
	VRF      uint32
	Prefix   netip.Prefix
	Origin   rib.Origin
	NextHops []NextHopSpec
}

func (r AddRouteRequest) encode() ([]byte, error) {
	e := &encoder{}
	e.u32(r.VRF)
	if err := e.prefix(r.Prefix); err != nil {
		return nil, err
	}
	e.u8(uint8(r.Origin))
	e.u16(uint16(len(r.NextHops)))
	for _, nh := range r.NextHops {
		if err := nh.encode(e); err != nil {
			return nil, err
		}
	}
	return e.buf, nil
}

func decodeAddRouteRequest(payload []byte) (AddRouteRequest, error) {
	d := newDecoder(payload)
	var r AddRouteRequest
	vrf, err := d.u32()
	if err != nil {
		return r, err
	}
	r.VRF = vrf
	prefix, err := d.prefix()
	if err != nil {
		return r, err
	}
	r.Prefix = prefix
	origin, err := d.u8()
	if err != nil {
		return r, err
	}
	r.Origin = rib.Origin(origin)
	count, err := d.u16()
	if err != nil {
		return r, err
	}
	r.NextHops = make([]NextHopSpec, count)
	for i := range r.NextHops {
		nh, err := decodeNextHopSpec(d)
		if err != nil {
			return r, err
		}
		r.NextHops[i] = nh
	}
	if err := d.done(); err != nil {
		return r, err
	}
	return r, nil
}

// DelRouteRequest withdraws a route from one VRF.
type DelRouteRequest struct {
	VRF    uint32
	Prefix netip.Prefix
}

func (r DelRouteRequest) encode() ([]byte, error) {
	e := &encoder{}
	e.u32(r.VRF)
	if err := e.prefix(r.Prefix); err != nil {
		return nil, err
	}
	return e.buf, nil
}

func decodeDelRouteRequest(payload []byte) (DelRouteRequest, error) {
	d := newDecoder(payload)
	var r DelRouteRequest
	vrf, err := d.u32()
	if err != nil {
		return r, err
	}
	r.VRF = vrf
	prefix, err := d.prefix()
	if err != nil {
		return r, err
	}
	r.Prefix = prefix
	if err := d.done(); err != nil {
		return r, err
	}
	return r, nil
}

// RmacRequest is the shared payload shape of AddRmac and DelRmac.
type RmacRequest struct {
	RemoteVTEP netip.Addr
	VNI        uint32
	MAC        packet.Mac
}

func (r RmacRequest) encode() ([]byte, error) {
	e := &encoder{}
	if err := e.addr(r.RemoteVTEP); err != nil {
		return nil, err
	}
	e.u32(r.VNI)
	e.bytes(r.MAC[:])
	return e.buf, nil
}

func decodeRmacRequest(payload []byte) (RmacRequest, error) {
	d := newDecoder(payload)
	var r RmacRequest
	remote, err := d.addr()
	if err != nil {
		return r, err
	}
	r.RemoteVTEP = remote
	vni, err := d.u32()
	if err != nil {
		return r, err
	}
	r.VNI = vni
	macBytes, err := d.bytes()
	if err != nil {
		return r, err
	}
	if len(macBytes) != len(r.MAC) {
		return r, fmt.Errorf("feeder: MAC field must be %d bytes, got %d", len(r.MAC), len(macBytes))
	}
	copy(r.MAC[:], macBytes)
	if err := d.done(); err != nil {
		return r, err
	}
	return r, nil
}

// IfAddressRequest is the shared payload shape of AddIfAddress and
// DelIfAddress.
type IfAddressRequest struct {
	IfIndex uint32
	Prefix  netip.Prefix
}

func (r IfAddressRequest) encode() ([]byte, error) {
	e := &encoder{}
	e.u32(r.IfIndex)
	if err := e.prefix(r.Prefix); err != nil {
		return nil, err
	}
	return e.buf, nil
}

func decodeIfAddressRequest(payload []byte) (IfAddressRequest, error) {
	d := newDecoder(payload)
	var r IfAddressRequest
	ifIndex, err := d.u32()
	if err != nil {
		return r, err
	}
	r.IfIndex = ifIndex
	prefix, err := d.prefix()
	if err != nil {
		return r, err
	}
	r.Prefix = prefix
	if err := d.done(); err != nil {
		return r, err
	}
	return r, nil
}

// GetRequest asks the server for a filtered dump of its tables. The
// filter's shape is left to the handler; spec.md §6 names the
// operation (`Get{filter}`) without fixing one.
type GetRequest struct {
	Filter string
}

func (r GetRequest) encode() []byte {
	e := &encoder{}
	e.str(r.Filter)
	return e.buf
}

func decodeGetRequest(payload []byte) (GetRequest, error) {
	d := newDecoder(payload)
	filter, err := d.str()
	if err != nil {
		return GetRequest{}, err
	}
	if err := d.done(); err != nil {
		return GetRequest{}, err
	}
	return GetRequest{Filter: filter}, nil
}

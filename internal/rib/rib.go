// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package rib implements the writer-side routing-information base
// (C6): a per-VRF tree of routes and a shared next-hop arena. It is
// the input to the FIB projector in internal/fib; nothing here is
// read by the forwarding hot path.
package rib

import (
	"fmt"
	"net/netip"
)

// Origin is the source of a route.
type Origin uint8

const (
	OriginLocal Origin = iota
	OriginConnected
	OriginStatic
	OriginBGP
	OriginOSPF
	OriginEVPN
)

// ForwardAction is what a leaf next-hop ultimately does with a
// matching packet once resolution bottoms out.
type ForwardAction uint8

const (
	ActionForward ForwardAction = iota
	ActionDrop
)

// EncapKind is the kind of encapsulation a next-hop applies.
type EncapKind uint8

const (
	EncapNone EncapKind = iota
	EncapVXLAN
	EncapMPLS
)

// Encapsulation describes how a next-hop wraps a packet before
// egress. It carries no inner destination MAC: the FIB projector
// resolves that from the router-MAC store, not the RIB writer.
type Encapsulation struct {
	Kind       EncapKind
	VNI        uint32
	RemoteVTEP netip.Addr
	MPLSLabel  uint32
}

// NextHopID is an arena handle; next-hops reference each other by ID
// rather than by pointer so FIB snapshots can copy them without
// aliasing writer-owned memory.
type NextHopID int

// NextHop is one node of the next-hop graph described in spec.md §3.
// Resolvers is the list of next-hops this one recurses into; a leaf
// next-hop (no resolvers) terminates one FIB entry.
type NextHop struct {
	Address   *netip.Addr
	IfIndex   *uint32
	VRF       *uint32
	Encap     *Encapsulation
	Action    ForwardAction
	Resolvers []NextHopID
}

// MaxResolutionDepth bounds the acyclic next-hop chain length, per
// spec.md §3 ("typical ≤ 3: final egress → recursive BGP → recursive
// EVPN → VTEP").
const MaxResolutionDepth = 3

// Arena owns all next-hop nodes for one VRF.
type Arena struct {
	nodes []NextHop
}

// Alloc appends a next-hop and returns its handle.
func (a *Arena) Alloc(nh NextHop) NextHopID {
	a.nodes = append(a.nodes, nh)
	return NextHopID(len(a.nodes) - 1)
}

// Get returns the next-hop for id, or nil if id is out of range.
func (a *Arena) Get(id NextHopID) *NextHop {
	if int(id) < 0 || int(id) >= len(a.nodes) {
		return nil
	}
	return &a.nodes[id]
}

// ValidateDepth walks id's resolver chain and rejects cycles and
// chains deeper than MaxResolutionDepth.
func (a *Arena) ValidateDepth(id NextHopID) error {
	return a.validateDepth(id, make(map[NextHopID]bool), 0)
}

func (a *Arena) validateDepth(id NextHopID, visited map[NextHopID]bool, depth int) error {
	if depth > MaxResolutionDepth {
		return fmt.Errorf("rib: next-hop %d resolution chain exceeds depth %d", id, MaxResolutionDepth)
	}
	if visited[id] {
		return fmt.Errorf("rib: next-hop %d resolution chain is cyclic", id)
	}
	visited[id] = true
	nh := a.Get(id)
	if nh == nil {
		return fmt.Errorf("rib: next-hop %d does not exist", id)
	}
	for _, r := range nh.Resolvers {
		if err := a.validateDepth(r, visited, depth+1); err != nil {
			return err
		}
	}
	delete(visited, id)
	return nil
}

// Route is one RIB entry, as defined in spec.md §3.
type Route struct {
	Prefix   netip.Prefix
	Origin   Origin
	NextHops []NextHopID
}

// VRF owns its own route set and next-hop arena.
type VRF struct {
	ID     uint32
	Name   string
	Arena  Arena
	Routes map[netip.Prefix]*Route
}

func newVRF(id uint32, name string) *VRF {
	return &VRF{ID: id, Name: name, Routes: make(map[netip.Prefix]*Route)}
}

// DefaultVRFID is the underlay/default VRF, per spec.md §3.
const DefaultVRFID uint32 = 0

// RIB is the top-level writer-side structure: a set of VRFs.
type RIB struct {
	vrfs map[uint32]*VRF
}

// New returns an empty RIB, pre-populated with the default VRF.
func New() *RIB {
	r := &RIB{vrfs: make(map[uint32]*VRF)}
	r.vrfs[DefaultVRFID] = newVRF(DefaultVRFID, "default")
	return r
}

// EnsureVRF returns the VRF with the given id, creating it if
// necessary.
func (r *RIB) EnsureVRF(id uint32, name string) *VRF {
	if v, ok := r.vrfs[id]; ok {
		return v
	}
	v := newVRF(id, name)
	r.vrfs[id] = v
	return v
}

// VRF returns the VRF with the given id, if it exists.
func (r *RIB) VRF(id uint32) (*VRF, bool) {
	v, ok := r.vrfs[id]
	return v, ok
}

// VRFs returns every VRF in the RIB, for callers that need to reproject
// all of them (e.g. after a bulk route-feeder resync).
func (r *RIB) VRFs() []*VRF {
	out := make([]*VRF, 0, len(r.vrfs))
	for _, v := range r.vrfs {
		out = append(out, v)
	}
	return out
}

// AddRoute installs or replaces the route for prefix in this VRF,
// validating every next-hop's resolution depth first so a malformed
// route-feeder update can never corrupt the arena.
func (v *VRF) AddRoute(prefix netip.Prefix, origin Origin, nextHops []NextHopID) error {
	for _, id := range nextHops {
		if err := v.Arena.ValidateDepth(id); err != nil {
			return err
		}
	}
	v.Routes[prefix] = &Route{Prefix: prefix, Origin: origin, NextHops: nextHops}
	return nil
}

// DelRoute removes the route for prefix, if present.
func (v *VRF) DelRoute(prefix netip.Prefix) {
	delete(v.Routes, prefix)
}

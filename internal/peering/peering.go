// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package peering validates VPC peering configuration: which CIDR
// blocks two VPCs expose to each other, and the exclusions carved out
// of an otherwise-exposed block. This generalizes the teacher's IP
// pool/range math (pkg/apis/v1.IPRange, internal/allocator) from "pool
// membership for address assignment" to "peering CIDR
// overlap/containment for route acceptance", per SPEC_FULL.md §4.4's
// EXPANSION note.
package peering

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"

	go_cidr "github.com/apparentlymart/go-cidr/cidr"
)

// Exposure is one VPC's side of a peering: a CIDR block it exposes to
// the peer, minus any excluded sub-blocks carved out of it.
type Exposure struct {
	CIDR    netip.Prefix
	Exclude []netip.Prefix
}

// Validate checks that every exclusion is actually contained within
// CIDR; an exclusion outside the exposed block can never exclude
// anything and is a configuration error.
func (e Exposure) Validate() error {
	for _, ex := range e.Exclude {
		if !cidrContains(e.CIDR, ex) {
			return fmt.Errorf("peering: excluded prefix %s is not contained within exposed prefix %s", ex, e.CIDR)
		}
	}
	return nil
}

// Allows reports whether addr is covered by this exposure: within
// CIDR and not within any excluded sub-block.
func (e Exposure) Allows(addr netip.Addr) bool {
	if !e.CIDR.Contains(addr) {
		return false
	}
	for _, ex := range e.Exclude {
		if ex.Contains(addr) {
			return false
		}
	}
	return true
}

// ValidatePeering checks two VPCs' exposures against each other: each
// side's own exclusions must nest inside its own CIDR, and — since
// this gateway projects both sides' exposed blocks into a shared
// route table — the two exposed CIDRs themselves must not overlap.
// The overlap check reduces each CIDR to its address range via
// go-cidr's AddressRange, then compares bounds the way the teacher's
// own pkg/apis/v1.IPRange.Overlaps does, generalized here from pool
// allocation to peering acceptance.
func ValidatePeering(a, b Exposure) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	aNet, err := toIPNet(a.CIDR)
	if err != nil {
		return err
	}
	bNet, err := toIPNet(b.CIDR)
	if err != nil {
		return err
	}
	aFrom, aTo := go_cidr.AddressRange(aNet)
	bFrom, bTo := go_cidr.AddressRange(bNet)
	if rangesOverlap(aFrom, aTo, bFrom, bTo) {
		return fmt.Errorf("peering: exposed CIDRs %s and %s overlap", a.CIDR, b.CIDR)
	}
	return nil
}

func rangesOverlap(aFrom, aTo, bFrom, bTo net.IP) bool {
	aFrom, aTo = aFrom.To16(), aTo.To16()
	bFrom, bTo = bFrom.To16(), bTo.To16()
	return (bytes.Compare(bFrom, aFrom) >= 0 && bytes.Compare(bFrom, aTo) <= 0) ||
		(bytes.Compare(bTo, aFrom) >= 0 && bytes.Compare(bTo, aTo) <= 0) ||
		(bytes.Compare(aFrom, bFrom) >= 0 && bytes.Compare(aFrom, bTo) <= 0)
}

// cidrContains reports whether inner is fully nested within outer: a
// narrower-or-equal prefix whose network address outer also covers.
func cidrContains(outer, inner netip.Prefix) bool {
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Addr())
}

func toIPNet(p netip.Prefix) (*net.IPNet, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("peering: invalid prefix")
	}
	_, ipnet, err := net.ParseCIDR(p.String())
	if err != nil {
		return nil, fmt.Errorf("peering: %w", err)
	}
	return ipnet, nil
}

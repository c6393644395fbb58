// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package natpf implements the port-forwarding rule table: the map
// from (source VPC, destination IP, protocol, destination port range)
// to the VPC/address/port range a matching packet's destination
// should be rewritten to, for cases the flow table's NAT state alone
// cannot determine (the first packet of a new flow).
package natpf

import "fmt"

// PortRange is an inclusive, non-empty range of ports. Both ends are
// non-zero: port 0 never appears on the wire as a usable source or
// destination port.
type PortRange struct {
	First uint16
	Last  uint16
}

// NewPortRange validates and constructs a PortRange.
func NewPortRange(first, last uint16) (PortRange, error) {
	if first == 0 || last == 0 {
		return PortRange{}, fmt.Errorf("natpf: port 0 is not a valid range endpoint (%d-%d)", first, last)
	}
	if last < first {
		return PortRange{}, fmt.Errorf("natpf: invalid port range %d-%d", first, last)
	}
	return PortRange{First: first, Last: last}, nil
}

// Len returns the number of ports the range spans.
func (r PortRange) Len() int { return int(r.Last) - int(r.First) + 1 }

// IsSingleton reports whether the range contains exactly one port.
func (r PortRange) IsSingleton() bool { return r.First == r.Last }

// Contains reports whether port falls within the range.
func (r PortRange) Contains(port uint16) bool { return port >= r.First && port <= r.Last }

// IndexOf returns port's zero-based offset within the range, if
// contained.
func (r PortRange) IndexOf(port uint16) (int, bool) {
	if !r.Contains(port) {
		return 0, false
	}
	return int(port - r.First), true
}

// PortAt returns the port at the given zero-based offset, if within
// bounds.
func (r PortRange) PortAt(index int) (uint16, bool) {
	if index < 0 || index >= r.Len() {
		return 0, false
	}
	return r.First + uint16(index), true
}

// MapPortTo maps port, which must lie within r, to the port at the
// same offset within other. r and other must have equal length;
// callers are expected to validate that when a rule is installed, not
// on every packet.
func (r PortRange) MapPortTo(port uint16, other PortRange) (uint16, bool) {
	idx, ok := r.IndexOf(port)
	if !ok {
		return 0, false
	}
	return other.PortAt(idx)
}

// OverlapsWith reports whether r and other share at least one port.
func (r PortRange) OverlapsWith(other PortRange) bool {
	return other.Contains(r.First) || other.Contains(r.Last) ||
		r.Contains(other.First) || r.Contains(other.Last)
}

func (r PortRange) String() string {
	if r.IsSingleton() {
		return fmt.Sprintf("%d", r.First)
	}
	return fmt.Sprintf("[%d-%d]", r.First, r.Last)
}

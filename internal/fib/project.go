// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package fib

import (
	"net/netip"

	"github.com/fabricgate/gwcore/internal/rib"
	"github.com/fabricgate/gwcore/internal/rmac"
)

// instrPath is one not-yet-squashed candidate FIB entry produced
// while walking a next-hop's resolver chain.
type instrPath struct {
	instrs     []Instruction
	incomplete bool
}

// ProjectRoute collapses one route's next-hop graph into a FibGroup,
// following the four steps of spec.md §4.4. An empty result (no
// resolved next-hops) is a valid FibGroup with zero entries; the
// forwarder treats that as RouteFailure per invariant (c).
func ProjectRoute(route *rib.Route, arena *rib.Arena, rmacTable *rmac.Table) FibGroup {
	var entries []FibEntry
	incomplete := false
	for _, nhID := range route.NextHops {
		for _, p := range walkNextHop(nhID, arena, route.Origin, rmacTable) {
			entries = append(entries, FibEntry{Instructions: squash(p.instrs)})
			incomplete = incomplete || p.incomplete
		}
	}
	return FibGroup{Entries: entries, Incomplete: incomplete}
}

// walkNextHop returns one instrPath per leaf resolver reachable from
// nhID, each the concatenation of every ancestor's instruction
// prefix in resolution order (step 3 of spec.md §4.4).
func walkNextHop(nhID rib.NextHopID, arena *rib.Arena, origin rib.Origin, rmacTable *rmac.Table) []instrPath {
	nh := arena.Get(nhID)
	if nh == nil {
		return nil
	}
	prefix, prefixIncomplete := buildPrefix(nh, origin, rmacTable)

	if len(nh.Resolvers) == 0 {
		return []instrPath{{instrs: prefix, incomplete: prefixIncomplete}}
	}

	var out []instrPath
	for _, r := range nh.Resolvers {
		for _, sub := range walkNextHop(r, arena, origin, rmacTable) {
			combined := make([]Instruction, 0, len(prefix)+len(sub.instrs))
			combined = append(combined, prefix...)
			combined = append(combined, sub.instrs...)
			out = append(out, instrPath{instrs: combined, incomplete: prefixIncomplete || sub.incomplete})
		}
	}
	return out
}

// buildPrefix implements step 1 and 2 of spec.md §4.4 for a single
// next-hop node, without recursing into its resolvers.
func buildPrefix(nh *rib.NextHop, origin rib.Origin, rmacTable *rmac.Table) ([]Instruction, bool) {
	if nh.Action == rib.ActionDrop {
		return []Instruction{{Kind: InstructionDrop}}, false
	}
	if origin == rib.OriginLocal {
		if nh.IfIndex == nil {
			return nil, false
		}
		return []Instruction{{Kind: InstructionLocal, LocalIfIndex: *nh.IfIndex}}, false
	}

	var instrs []Instruction
	incomplete := false
	if nh.Encap != nil {
		enc := *nh.Encap
		if enc.Kind == rib.EncapVXLAN {
			if _, found := rmacTable.Get(rmac.Key{RemoteVTEP: enc.RemoteVTEP, VNI: enc.VNI}); !found {
				incomplete = true
			}
		}
		instrs = append(instrs, Instruction{Kind: InstructionEncap, Encap: &enc})
	}
	if nh.IfIndex != nil {
		instrs = append(instrs, Instruction{Kind: InstructionEgress, EgressIfIndex: nh.IfIndex, NextHopIP: nh.Address})
	}
	return instrs, incomplete
}

// squash implements step 4 of spec.md §4.4: it drops every
// instruction identical to the one immediately before it (such as an
// Egress repeating the target its predecessor named, which can arise
// when a recursive resolver re-asserts the same egress target its
// parent already named). Adjacent instructions of equal kind that
// differ are kept as they are, and Encap and NAT instructions are
// never treated as identical.
func squash(in []Instruction) []Instruction {
	if len(in) == 0 {
		return in
	}
	out := make([]Instruction, 0, len(in))
	for _, ins := range in {
		if len(out) > 0 && sameInstruction(out[len(out)-1], ins) {
			continue
		}
		out = append(out, ins)
	}
	return out
}

func sameInstruction(a, b Instruction) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case InstructionEgress:
		return ptrUint32Equal(a.EgressIfIndex, b.EgressIfIndex) && ptrAddrEqual(a.NextHopIP, b.NextHopIP) && a.EgressIfName == b.EgressIfName
	case InstructionLocal:
		return a.LocalIfIndex == b.LocalIfIndex
	case InstructionDrop:
		return true
	default:
		return false
	}
}

func ptrUint32Equal(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ptrAddrEqual(a, b *netip.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package fib implements the FIB entry/group types (C7) and the
// per-VRF longest-prefix-match table that serves them to the
// forwarding pipeline (C8), backed by github.com/gaissmai/bart.
package fib

import (
	"net/netip"

	"github.com/fabricgate/gwcore/internal/rib"
)

// InstructionKind discriminates the tagged PacketInstruction variants
// from spec.md §3.
type InstructionKind uint8

const (
	InstructionDrop InstructionKind = iota
	InstructionLocal
	InstructionEncap
	InstructionEgress
	InstructionNAT
)

// Instruction is one step of a FIB entry's execution list.
type Instruction struct {
	Kind InstructionKind

	// Local
	LocalIfIndex uint32

	// Encap
	Encap *rib.Encapsulation

	// Egress
	EgressIfIndex *uint32
	NextHopIP     *netip.Addr
	EgressIfName  string
}

// FibEntry is an ordered, flattened, squashed instruction list.
type FibEntry struct {
	Instructions []Instruction
}

// EndsValidly checks invariant 3 from spec.md §8: every entry's
// instruction list ends with Local, Drop, or Egress.
func (e *FibEntry) EndsValidly() bool {
	if len(e.Instructions) == 0 {
		return false
	}
	switch e.Instructions[len(e.Instructions)-1].Kind {
	case InstructionLocal, InstructionDrop, InstructionEgress:
		return true
	default:
		return false
	}
}

// FibGroup is a set of FIB entries (multipath). Incomplete is set
// when an Encap(VXLAN) instruction could not resolve its inner
// destination MAC; the group is still published, per spec.md §4.4
// step 2. No stage reads Incomplete: a packet whose Encap instruction
// finds no router MAC is dropped with CauseInvalidDstMac by the
// IP-forwarding stage, before it reaches egress.
type FibGroup struct {
	Entries    []FibEntry
	Incomplete bool
}

// Clone returns a deep copy, satisfying github.com/gaissmai/bart's
// Cloner interface so bart.Table[*FibGroup].Clone() produces
// independent copy-on-write snapshots for the writer to mutate
// without disturbing a published table.
func (g *FibGroup) Clone() *FibGroup {
	if g == nil {
		return nil
	}
	cp := &FibGroup{Incomplete: g.Incomplete, Entries: make([]FibEntry, len(g.Entries))}
	for i, e := range g.Entries {
		cp.Entries[i] = FibEntry{Instructions: append([]Instruction(nil), e.Instructions...)}
	}
	return cp
}

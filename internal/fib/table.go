// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package fib

import (
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/fabricgate/gwcore/internal/pubtable"
	"github.com/fabricgate/gwcore/internal/rib"
	"github.com/fabricgate/gwcore/internal/rmac"
)

// VRFFib is the per-VRF longest-prefix-match table serving the
// forwarding pipeline, per spec.md §4.5.
type VRFFib struct {
	lpm *bart.Table[*FibGroup]
}

// Lookup returns the FibGroup for the longest prefix matching ip.
func (v *VRFFib) Lookup(ip netip.Addr) (*FibGroup, bool) {
	if v == nil || v.lpm == nil {
		return nil, false
	}
	return v.lpm.Lookup(ip)
}

// Tables is the immutable published snapshot of every VRF's FIB.
type Tables struct {
	byVRF map[uint32]*VRFFib
}

// VRF returns the FIB for the given VRF id.
func (t *Tables) VRF(id uint32) (*VRFFib, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.byVRF[id]
	return v, ok
}

// Writer projects RIB contents into per-VRF LPM tables and publishes
// them. Projection is the writer's job; workers only ever call
// Tables.VRF(...).Lookup.
type Writer struct {
	published *pubtable.Published[Tables]
	working   map[uint32]*bart.Table[*FibGroup]
}

// NewWriter returns a Writer publishing through pub.
func NewWriter(pub *pubtable.Published[Tables]) *Writer {
	return &Writer{published: pub, working: make(map[uint32]*bart.Table[*FibGroup])}
}

// ProjectVRF re-projects every route of one VRF from scratch and
// replaces that VRF's working LPM table. Because gaissmai/bart
// supports Clone(), a future incremental-update path could clone and
// mutate in place; a full re-projection is used here because it is
// the only way to guarantee testable property 4 (bit-identical
// re-projection) without also tracking per-route diffs.
func (w *Writer) ProjectVRF(vrf *rib.VRF, rmacTable *rmac.Table) {
	lpm := new(bart.Table[*FibGroup])
	for prefix, route := range vrf.Routes {
		group := ProjectRoute(route, &vrf.Arena, rmacTable)
		lpm.Insert(prefix, &group)
	}
	w.working[vrf.ID] = lpm
}

// RemoveVRF drops a VRF's FIB entirely, e.g. when the VRF itself is
// deleted.
func (w *Writer) RemoveVRF(vrfID uint32) {
	delete(w.working, vrfID)
}

// Publish snapshots the working tables and swaps them in for readers.
// Per spec.md §5, the writer must publish router-MAC and adjacency
// tables before the FIB that depends on them; callers are responsible
// for that ordering across packages, this only orders the FIB's own
// publication.
func (w *Writer) Publish() {
	snap := make(map[uint32]*VRFFib, len(w.working))
	for id, lpm := range w.working {
		snap[id] = &VRFFib{lpm: lpm}
	}
	w.published.Publish(&Tables{byVRF: snap})
}

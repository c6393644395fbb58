// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package rmac implements the EVPN router-MAC store (C5): (remote
// VTEP IP, VNI) to inner destination MAC, used by the FIB projector
// to resolve VXLAN encapsulation instructions. Grounded on
// original_source/routing/src/evpn/rmac.rs — keyed by the pair, a
// later add with the same key silently replaces the MAC.
package rmac

import (
	"net/netip"

	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// Key identifies a router-MAC entry.
type Key struct {
	RemoteVTEP netip.Addr
	VNI        uint32
}

// Table is the immutable published snapshot.
type Table struct {
	byKey map[Key]packet.Mac
}

// Get looks up the router MAC for (remote VTEP, VNI).
func (t *Table) Get(key Key) (packet.Mac, bool) {
	if t == nil {
		return packet.Mac{}, false
	}
	mac, ok := t.byKey[key]
	return mac, ok
}

// Len reports the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Writer is the single mutator of a router-MAC store.
type Writer struct {
	published *pubtable.Published[Table]
	working   map[Key]packet.Mac
}

// NewWriter returns a Writer publishing through pub.
func NewWriter(pub *pubtable.Published[Table]) *Writer {
	return &Writer{published: pub, working: make(map[Key]packet.Mac)}
}

// Add registers or silently replaces the MAC for key, per spec.md §3's
// router-MAC entry invariant.
func (w *Writer) Add(key Key, mac packet.Mac) {
	w.working[key] = mac
}

// Remove deletes the entry for key if mac matches the currently
// registered MAC (mirrors the original's del_rmac sanity check —
// a stale delete for a since-replaced MAC is a no-op).
func (w *Writer) Remove(key Key, mac packet.Mac) {
	if cur, ok := w.working[key]; ok && cur == mac {
		delete(w.working, key)
	}
}

// Publish snapshots the working copy and swaps it in for readers.
func (w *Writer) Publish() {
	snap := make(map[Key]packet.Mac, len(w.working))
	for k, v := range w.working {
		snap[k] = v
	}
	w.published.Publish(&Table{byKey: snap})
}

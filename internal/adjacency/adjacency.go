// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package adjacency implements the (next-hop IP, egress ifindex) to
// destination-MAC table (C4). Entries transition from Pending to
// Resolved when the external ARP/ND resolver completes; the egress
// stage looks entries up per packet and uses only resolved ones.
package adjacency

import (
	"net/netip"

	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// State is the resolution state of an adjacency entry.
type State uint8

const (
	Pending State = iota
	Resolved
)

// Key identifies an adjacency by next-hop IP and egress interface.
type Key struct {
	NextHopIP     netip.Addr
	EgressIfIndex uint32
}

// Entry is the resolved (or pending) destination MAC for a Key.
type Entry struct {
	MAC   packet.Mac
	State State
}

// Table is the immutable published snapshot.
type Table struct {
	byKey map[Key]Entry
}

// Get looks up the adjacency for key.
func (t *Table) Get(key Key) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.byKey[key]
	return e, ok
}

// Len reports the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Writer is the single mutator of an adjacency table.
type Writer struct {
	published *pubtable.Published[Table]
	working   map[Key]Entry
}

// NewWriter returns a Writer publishing through pub.
func NewWriter(pub *pubtable.Published[Table]) *Writer {
	return &Writer{published: pub, working: make(map[Key]Entry)}
}

// SetPending marks key as awaiting resolution, if it isn't already
// known; an existing Resolved entry is left untouched (resolution
// only moves forward).
func (w *Writer) SetPending(key Key) {
	if _, ok := w.working[key]; ok {
		return
	}
	w.working[key] = Entry{State: Pending}
}

// SetResolved records a resolved destination MAC for key.
func (w *Writer) SetResolved(key Key, mac packet.Mac) {
	w.working[key] = Entry{MAC: mac, State: Resolved}
}

// Remove deletes an adjacency, e.g. when its egress interface goes
// away.
func (w *Writer) Remove(key Key) {
	delete(w.working, key)
}

// Publish snapshots the working copy and swaps it in for readers.
func (w *Writer) Publish() {
	snap := make(map[Key]Entry, len(w.working))
	for k, v := range w.working {
		snap[k] = v
	}
	w.published.Publish(&Table{byKey: snap})
}

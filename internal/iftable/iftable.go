// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package iftable implements the kernel-ifindex to interface-state
// table (C3): attachment to a VRF or bridge domain, admin/oper state,
// and the addresses an interface carries. It is republished through
// internal/pubtable on every route-feeder or kernel event.
package iftable

import (
	"fmt"
	"net/netip"

	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// Kind is the interface type.
type Kind uint8

const (
	KindLoopback Kind = iota
	KindEthernet
	KindVLANSubInterface
	KindVTEP
)

// AdminState and OperState distinguish configured intent from
// observed reality, mirroring the teacher's interface records.
type AdminState uint8

const (
	AdminDown AdminState = iota
	AdminUp
)

type OperState uint8

const (
	OperDown OperState = iota
	OperUp
)

// AttachmentKind discriminates what an interface is bound to.
type AttachmentKind uint8

const (
	AttachmentUnattached AttachmentKind = iota
	AttachmentVRF
	AttachmentBridgeDomain
)

// Attachment names the VRF an interface belongs to, or records that
// it is a bridge-domain member or unattached.
type Attachment struct {
	Kind AttachmentKind
	VRF  uint32 // meaningful only when Kind == AttachmentVRF
}

// Interface is one entry of the table, as defined in spec §3.
type Interface struct {
	Index      uint32
	Name       string
	Kind       Kind
	Admin      AdminState
	Oper       OperState
	MAC        packet.Mac
	MTU        int
	Addresses  []netip.Prefix
	Attachment Attachment
}

// Validate enforces the VTEP invariant from spec §3: a VTEP has
// exactly one local unicast IPv4 address and a MAC.
func (i *Interface) Validate() error {
	if i.Kind != KindVTEP {
		return nil
	}
	var v4 int
	for _, p := range i.Addresses {
		if p.Addr().Is4() && !p.Addr().IsMulticast() {
			v4++
		}
	}
	if v4 != 1 {
		return fmt.Errorf("iftable: VTEP interface %d (%s) must have exactly one local unicast IPv4 address, has %d", i.Index, i.Name, v4)
	}
	if i.MAC == (packet.Mac{}) {
		return fmt.Errorf("iftable: VTEP interface %d (%s) has no source MAC", i.Index, i.Name)
	}
	return nil
}

// Table is the immutable, published snapshot readers observe.
type Table struct {
	byIndex map[uint32]*Interface
}

// Get looks up an interface by kernel ifindex.
func (t *Table) Get(ifindex uint32) (*Interface, bool) {
	if t == nil {
		return nil, false
	}
	iface, ok := t.byIndex[ifindex]
	return iface, ok
}

// Len reports the number of interfaces in the snapshot.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byIndex)
}

// Writer is the single mutator of an interface table. It builds up a
// working copy and publishes immutable snapshots through Published.
type Writer struct {
	published *pubtable.Published[Table]
	working   map[uint32]*Interface
}

// NewWriter returns a Writer publishing through pub.
func NewWriter(pub *pubtable.Published[Table]) *Writer {
	return &Writer{published: pub, working: make(map[uint32]*Interface)}
}

// AddOrUpdate inserts or replaces the interface by index, after
// validating it.
func (w *Writer) AddOrUpdate(iface Interface) error {
	if err := iface.Validate(); err != nil {
		return err
	}
	cp := iface
	w.working[iface.Index] = &cp
	return nil
}

// Remove deletes an interface from the working copy.
func (w *Writer) Remove(ifindex uint32) {
	delete(w.working, ifindex)
}

// Get returns a copy of the writer's staged (not yet necessarily
// published) interface state. It exists for callers that must
// read-modify-write a single field — the route feeder's
// AddIfAddress/DelIfAddress, which only ever touch one interface's
// address list — without keeping a second copy of the writer's state
// of their own.
func (w *Writer) Get(ifindex uint32) (Interface, bool) {
	iface, ok := w.working[ifindex]
	if !ok {
		return Interface{}, false
	}
	return *iface, true
}

// FindByName looks up a staged interface by name, for configuration
// intake binding a named device interface to its kernel ifindex. Kernel
// interface names are unique on a host, so the first match is the
// only match.
func (w *Writer) FindByName(name string) (Interface, bool) {
	for _, iface := range w.working {
		if iface.Name == name {
			return *iface, true
		}
	}
	return Interface{}, false
}

// Publish snapshots the working copy and atomically swaps it in for
// readers. The working copy is copied so later mutations by the
// writer never alias a published snapshot.
func (w *Writer) Publish() {
	snap := make(map[uint32]*Interface, len(w.working))
	for k, v := range w.working {
		cp := *v
		snap[k] = &cp
	}
	w.published.Publish(&Table{byIndex: snap})
}

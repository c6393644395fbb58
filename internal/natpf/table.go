// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package natpf

import (
	"fmt"
	"net/netip"

	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// Key identifies a port-forwarding rule by the traffic it matches:
// packets from SrcVPC addressed to (DstIP, Proto, a port within
// ExtPorts). Rules are not keyed by the individual port so that one
// rule can cover a whole external port range.
type Key struct {
	SrcVPC   packet.VPCDiscriminant
	DstIP    netip.Addr
	Proto    packet.IPProto
	ExtPorts PortRange
}

func (k Key) String() string {
	return fmt.Sprintf("vpc:%d %s:%s/%d", k.SrcVPC.VNI, k.DstIP, k.ExtPorts, k.Proto)
}

// Entry is the rewrite a matching packet's destination receives: its
// VPC, IP address and port are replaced by the values here, with the
// port taken at the same offset within IntPorts that the original
// port held within the matching Key's ExtPorts.
type Entry struct {
	DstVPC   packet.VPCDiscriminant
	DstIP    netip.Addr
	IntPorts PortRange
}

func (e Entry) String() string {
	return fmt.Sprintf("%s:%s at vpc:%d", e.DstIP, e.IntPorts, e.DstVPC.VNI)
}

// Table is the read-only, published view of installed port-forwarding
// rules, keyed as spec.md's NAT/port-forward section describes.
type Table struct {
	rules map[Key]Entry
}

// LookupRule finds the rule, if any, whose Key matches (srcVPC, dstIP,
// proto) and whose ExtPorts contains dstPort, and returns the port the
// packet's destination should be rewritten to.
func (t *Table) LookupRule(srcVPC packet.VPCDiscriminant, dstIP netip.Addr, proto packet.IPProto, dstPort uint16) (Entry, uint16, bool) {
	for k, e := range t.rules {
		if k.SrcVPC != srcVPC || k.DstIP != dstIP || k.Proto != proto {
			continue
		}
		if !k.ExtPorts.Contains(dstPort) {
			continue
		}
		newPort, ok := k.ExtPorts.MapPortTo(dstPort, e.IntPorts)
		if !ok {
			continue
		}
		return e, newPort, true
	}
	return Entry{}, 0, false
}

// Len reports the number of installed rules.
func (t *Table) Len() int { return len(t.rules) }

// Writer is the single-writer handle that mutates a working rule set
// and publishes immutable snapshots of it.
type Writer struct {
	published *pubtable.Published[Table]
	working   map[Key]Entry
}

// NewWriter returns a Writer publishing through pub.
func NewWriter(pub *pubtable.Published[Table]) *Writer {
	return &Writer{published: pub, working: map[Key]Entry{}}
}

// AddRule installs a rule, rejecting the configurations the original
// port-forwarding table also rejects: an invalid or unspecified
// address on either side, addresses of different IP versions, a
// multicast address on either side, external and internal port ranges
// of different lengths, forwarding within the same VPC (peering would
// be required and is not modeled), a different entry under an
// identical key, and a rule whose external port range overlaps an
// existing rule's for the same source VPC, destination address and
// protocol. Re-adding an identical (key, entry) pair is idempotent.
func (w *Writer) AddRule(key Key, entry Entry) error {
	if !key.DstIP.IsValid() || key.DstIP.IsUnspecified() {
		return fmt.Errorf("natpf: invalid destination address %s", key.DstIP)
	}
	if !entry.DstIP.IsValid() || entry.DstIP.IsUnspecified() {
		return fmt.Errorf("natpf: invalid target address %s", entry.DstIP)
	}
	if key.DstIP.Is4() != entry.DstIP.Is4() {
		return fmt.Errorf("natpf: cannot port-forward between distinct IP versions")
	}
	if key.DstIP.IsMulticast() || entry.DstIP.IsMulticast() {
		return fmt.Errorf("natpf: port-forwarding is not supported for multicast addresses")
	}
	if key.ExtPorts.Len() != entry.IntPorts.Len() {
		return fmt.Errorf("natpf: external and internal port ranges must have equal length (%d != %d)", key.ExtPorts.Len(), entry.IntPorts.Len())
	}
	if key.SrcVPC == entry.DstVPC {
		return fmt.Errorf("natpf: cannot port-forward within the same VPC")
	}

	if existing, ok := w.working[key]; ok {
		if existing == entry {
			return nil
		}
		return fmt.Errorf("natpf: duplicate key %s", key)
	}
	for k := range w.working {
		if k.SrcVPC == key.SrcVPC && k.DstIP == key.DstIP && k.Proto == key.Proto && k.ExtPorts.OverlapsWith(key.ExtPorts) {
			return fmt.Errorf("natpf: rule for %s overlaps an existing rule's port range", key)
		}
	}
	w.working[key] = entry
	return nil
}

// RemoveRule deletes the rule at key, if present.
func (w *Writer) RemoveRule(key Key) {
	delete(w.working, key)
}

// Publish snapshots the working rule set into a fresh Table and
// publishes it.
func (w *Writer) Publish() {
	snap := make(map[Key]Entry, len(w.working))
	for k, v := range w.working {
		snap[k] = v
	}
	w.published.Publish(&Table{rules: snap})
}

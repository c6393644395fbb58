// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package flowtable implements the expiring, shared, lock-free-on-read
// hash index of active sessions (C9). Shards are chosen by a hash of
// the key, not by worker: any worker (or the writer) may insert into
// any shard, and a per-shard mutex serializes those inserts.
package flowtable

import (
	"net/netip"

	"github.com/fabricgate/gwcore/internal/packet"
)

// Key is the canonical unidirectional flow key from spec.md §3. Ports
// and the ICMP id are carried with explicit "has" flags rather than
// pointers so Key stays a plain comparable value usable as a map key;
// they are present exactly when the protocol has them, which is the
// canonicalization invariant the reverse-key lookup relies on.
type Key struct {
	SrcVPC    packet.VPCDiscriminant
	HasDstVPC bool
	DstVPC    packet.VPCDiscriminant

	SrcIP netip.Addr
	DstIP netip.Addr
	Proto packet.IPProto

	HasPorts bool
	SrcPort  uint16
	DstPort  uint16

	HasICMPID bool
	ICMPID    uint16
}

// NewKey builds the canonical forward key for a packet whose network
// and transport headers have already been parsed. It returns false if
// the packet has no network-layer header to key on.
func NewKey(srcVPC packet.VPCDiscriminant, dstVPC *packet.VPCDiscriminant, h *packet.Headers) (Key, bool) {
	src, ok := h.SourceIP()
	if !ok {
		return Key{}, false
	}
	dst, _ := h.DestinationIP()
	proto, _ := h.Protocol()

	k := Key{
		SrcVPC: srcVPC,
		SrcIP:  src,
		DstIP:  dst,
		Proto:  proto,
	}
	if dstVPC != nil {
		k.HasDstVPC = true
		k.DstVPC = *dstVPC
	}
	if sp, ok := h.SourcePort(); ok {
		dp, _ := h.DestinationPort()
		k.HasPorts = true
		k.SrcPort, k.DstPort = sp, dp
	}
	if id, ok := h.ICMPID(); ok {
		k.HasICMPID = true
		k.ICMPID = id
	}
	return k, true
}

// Reverse swaps source and destination fields, producing the key the
// symmetric reply packet would canonicalize to. When the forward key
// carries no destination VPC (the common case before the flow-filter
// stage has made a routing decision), the reverse key keeps the
// forward key's source VPC and carries no destination VPC either, the
// same shape NewKey gives the reply packet at that point.
func (k Key) Reverse() Key {
	r := Key{
		SrcIP: k.DstIP,
		DstIP: k.SrcIP,
		Proto: k.Proto,
	}
	if k.HasDstVPC {
		r.SrcVPC = k.DstVPC
		r.HasDstVPC = true
		r.DstVPC = k.SrcVPC
	} else {
		r.SrcVPC = k.SrcVPC
	}
	if k.HasPorts {
		r.HasPorts = true
		r.SrcPort, r.DstPort = k.DstPort, k.SrcPort
	}
	if k.HasICMPID {
		r.HasICMPID = true
		r.ICMPID = k.ICMPID
	}
	return r
}

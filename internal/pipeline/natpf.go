// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"net/netip"
	"time"

	"github.com/fabricgate/gwcore/internal/flowtable"
	"github.com/fabricgate/gwcore/internal/natpf"
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// DefaultFlowTTL is how long a flow installed by port-forwarding stays
// active without further traffic refreshing it.
const DefaultFlowTTL = 5 * time.Minute

// NATPortForward implements spec.md §4.8 step 5. Grounded on
// original_source/nat/src/portfw/nf.rs's PortForwarder and
// portfw/packet.rs's dnat_packet/snat_packet/nat_packet: a packet
// already carrying flow info with NAT state is rewritten per that
// state's fixed action and target, and its flow refreshed; otherwise
// the packet is matched against the installed rule table, rewritten,
// and a forward (DstNat) + reverse (SrcNat) flow pair is installed so
// the rest of the session, in both directions, bypasses the rule
// lookup.
type NATPortForward struct {
	rules *pubtable.Published[natpf.Table]
	flows *flowtable.Table
	now   func() time.Time
}

// NewNATPortForward returns a NATPortForward stage backed by rules and
// flows.
func NewNATPortForward(rules *pubtable.Published[natpf.Table], flows *flowtable.Table) *NATPortForward {
	return &NATPortForward{rules: rules, flows: flows, now: time.Now}
}

func (s *NATPortForward) Process(batch []*packet.Packet) {
	rules := s.rules.Load()
	for _, p := range batch {
		if p.IsDone() {
			continue
		}
		s.processOne(rules, p)
	}
}

func (s *NATPortForward) processOne(rules *natpf.Table, p *packet.Packet) {
	if info, ok := p.Metadata.FlowInfo.(*flowtable.Info); ok && info != nil {
		if info.NAT != nil {
			s.applyNAT(info.NAT, p)
			info.Extend(s.now().Add(DefaultFlowTTL))
		}
		return
	}
	s.tryPortForward(rules, p)
}

// applyNAT rewrites a packet's destination or source per the flow's
// fixed NAT state, established when the flow was first installed.
func (s *NATPortForward) applyNAT(nat *flowtable.NATState, p *packet.Packet) {
	srcPort, _ := p.Headers.SourcePort()
	dstPort, _ := p.Headers.DestinationPort()
	switch nat.Action {
	case flowtable.NATActionDstNat:
		setDestination(p.Headers, nat.ReplacementIP)
		dstPort = nat.ReplacementPort
	case flowtable.NATActionSrcNat:
		setSource(p.Headers, nat.ReplacementIP)
		srcPort = nat.ReplacementPort
	}
	if err := p.RewriteNATAddressesAndPorts(srcPort, dstPort); err != nil {
		p.Drop(packet.CauseInternalFailure)
	}
}

func (s *NATPortForward) tryPortForward(rules *natpf.Table, p *packet.Packet) {
	proto, ok := p.Headers.Protocol()
	if !ok || (proto != packet.ProtoTCP && proto != packet.ProtoUDP) {
		return
	}
	if p.Headers.TCP != nil && (!p.Headers.TCP.Flags.Has(packet.TCPFlagSYN) || p.Headers.TCP.Flags.Has(packet.TCPFlagACK)) {
		// Only a session-opening SYN installs a new port-forwarding
		// flow; later segments of an unestablished flow are dropped
		// rather than silently forwarded unNATed.
		p.Drop(packet.CauseFiltered)
		return
	}
	srcIP, ok := p.Headers.SourceIP()
	if !ok {
		return
	}
	dstIP, ok := p.Headers.DestinationIP()
	if !ok || !dstIP.IsValid() || dstIP.IsMulticast() {
		return
	}
	srcPort, _ := p.Headers.SourcePort()
	dstPort, ok := p.Headers.DestinationPort()
	if !ok {
		p.Drop(packet.CauseInternalFailure)
		return
	}

	srcVPC := srcVPCOf(p)
	entry, newDstPort, ok := rules.LookupRule(srcVPC, dstIP, proto, dstPort)
	if !ok {
		return
	}

	expiry := s.now().Add(DefaultFlowTTL)

	// Forward entry: further packets from the external caller to the
	// virtual (dstIP, dstPort) get destination-NATed to the real
	// backend. Keyed with no destination VPC, matching the key the
	// flow-lookup stage builds before a routing decision exists.
	if fk, ok := flowtable.NewKey(srcVPC, nil, p.Headers); ok {
		forwardInfo := flowtable.NewInfo(flowtable.StatusActive, expiry, &flowtable.NATState{
			Action:          flowtable.NATActionDstNat,
			ReplacementIP:   entry.DstIP,
			ReplacementPort: newDstPort,
		}, &entry.DstVPC)
		s.flows.Insert(fk, forwardInfo)
	}

	// Reverse entry: traffic from the real backend back to the
	// external caller's (srcIP, srcPort) must be source-NATed back to
	// the virtual (dstIP, dstPort) the caller originally addressed.
	reverseKey := flowtable.Key{
		SrcVPC:   entry.DstVPC,
		SrcIP:    entry.DstIP,
		DstIP:    srcIP,
		Proto:    proto,
		HasPorts: true,
		SrcPort:  newDstPort,
		DstPort:  srcPort,
	}
	reverseInfo := flowtable.NewInfo(flowtable.StatusActive, expiry, &flowtable.NATState{
		Action:          flowtable.NATActionSrcNat,
		ReplacementIP:   dstIP,
		ReplacementPort: dstPort,
	}, &srcVPC)
	s.flows.Insert(reverseKey, reverseInfo)

	setDestination(p.Headers, entry.DstIP)
	if err := p.RewriteNATAddressesAndPorts(srcPort, newDstPort); err != nil {
		p.Drop(packet.CauseInternalFailure)
		return
	}
	p.Metadata.DstVPC = &entry.DstVPC
}

func setDestination(h *packet.Headers, addr netip.Addr) {
	switch {
	case h.IPv4 != nil:
		h.IPv4.Destination = addr
	case h.IPv6 != nil:
		h.IPv6.Destination = addr
	}
}

func setSource(h *packet.Headers, addr netip.Addr) {
	switch {
	case h.IPv4 != nil:
		h.IPv4.Source = addr
	case h.IPv6 != nil:
		h.IPv6.Source = addr
	}
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"github.com/fabricgate/gwcore/internal/adjacency"
	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// Egress implements spec.md §4.8 step 6: resolve the egress
// interface, reject it if it cannot carry traffic, look up the
// destination MAC for the chosen next hop, rewrite the outer Ethernet
// header, and mark the packet delivered. Grounded on
// original_source/dataplane/src/packet_processor/egress.rs.
type Egress struct {
	ifaces *pubtable.Published[iftable.Table]
	adjs   *pubtable.Published[adjacency.Table]
}

// NewEgress returns an Egress stage reading from the given published
// tables.
func NewEgress(ifaces *pubtable.Published[iftable.Table], adjs *pubtable.Published[adjacency.Table]) *Egress {
	return &Egress{ifaces: ifaces, adjs: adjs}
}

func (s *Egress) Process(batch []*packet.Packet) {
	ifaces := s.ifaces.Load()
	adjs := s.adjs.Load()
	for _, p := range batch {
		if p.IsDone() {
			continue
		}
		s.processOne(ifaces, adjs, p)
	}
}

func (s *Egress) processOne(ifaces *iftable.Table, adjs *adjacency.Table, p *packet.Packet) {
	if p.Metadata.Flags&packet.FlagLocalDelivery != 0 {
		p.Drop(packet.CauseLocal)
		return
	}
	if p.Metadata.EgressIfIndex == nil {
		p.Drop(packet.CauseRouteFailure)
		return
	}
	ifIndex := *p.Metadata.EgressIfIndex
	iface, ok := ifaces.Get(ifIndex)
	if !ok {
		p.Drop(packet.CauseInterfaceUnknown)
		return
	}
	if iface.Admin == iftable.AdminDown {
		p.Drop(packet.CauseInterfaceAdmDown)
		return
	}
	if iface.Oper == iftable.OperDown {
		p.Drop(packet.CauseInterfaceOperDown)
		return
	}
	if p.Metadata.NextHopIP == nil {
		p.Drop(packet.CauseRouteFailure)
		return
	}
	adj, ok := adjs.Get(adjacency.Key{NextHopIP: *p.Metadata.NextHopIP, EgressIfIndex: ifIndex})
	if !ok || adj.State != adjacency.Resolved {
		p.Drop(packet.CauseInvalidDstMac)
		return
	}

	if err := p.DeparseEthernet(adj.MAC, iface.MAC); err != nil {
		p.Drop(packet.CauseInternalFailure)
		return
	}
	p.Drop(packet.CauseDelivered)
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// Ingress resolves the ingress interface, rejects frames it cannot
// admit (unknown/down interface, destination MAC not ours), and sets
// the packet's VRF from the interface's attachment. Grounded on
// original_source/dataplane/src/packet_processor/ingress.rs.
type Ingress struct {
	ifaces *pubtable.Published[iftable.Table]
}

// NewIngress returns an Ingress stage reading interface state from
// ifaces.
func NewIngress(ifaces *pubtable.Published[iftable.Table]) *Ingress {
	return &Ingress{ifaces: ifaces}
}

func (s *Ingress) Process(batch []*packet.Packet) {
	ifaces := s.ifaces.Load()
	for _, p := range batch {
		if p.IsDone() {
			continue
		}
		s.processOne(ifaces, p)
	}
}

func (s *Ingress) processOne(ifaces *iftable.Table, p *packet.Packet) {
	iface, ok := ifaces.Get(p.Metadata.IngressIfIndex)
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
	switch iface.Kind {
	case iftable.KindEthernet, iftable.KindVLANSubInterface, iftable.KindVTEP:
	default:
		p.Drop(packet.CauseInterfaceUnsupported)
		return
	}

	eth := p.Headers.Eth
	if eth == nil {
		p.Drop(packet.CauseNotEthernet)
		return
	}
	bridged := iface.Attachment.Kind == iftable.AttachmentBridgeDomain
	switch {
	case eth.Destination.IsBroadcast() || eth.Destination.IsMulticast():
		p.Metadata.Flags |= packet.FlagBroadcast
		p.Drop(packet.CauseUnhandled)
		return
	case eth.Destination == iface.MAC || bridged:
		s.admitLocal(iface, p)
	default:
		// A frame not addressed to us is rejected rather than flooded,
		// unless the ingress interface is a bridge member, in which
		// case it is not ours to claim by MAC in the first place.
		p.Drop(packet.CauseMacNotForUs)
	}
}

func (s *Ingress) admitLocal(iface *iftable.Interface, p *packet.Packet) {
	bridged := iface.Attachment.Kind == iftable.AttachmentBridgeDomain
	if p.Headers.IPv4 == nil && p.Headers.IPv6 == nil && !bridged {
		p.Drop(packet.CauseNotIP)
		return
	}
	switch iface.Attachment.Kind {
	case iftable.AttachmentVRF:
		vrf := iface.Attachment.VRF
		p.Metadata.VRF = &vrf
	case iftable.AttachmentBridgeDomain:
		// Bridge forwarding itself is not modeled past ingress; the
		// packet is admitted here rather than dropped and falls to
		// whatever later stage can make progress on it (IP forwarding
		// for an IP frame, CauseNotIP otherwise).
	case iftable.AttachmentUnattached:
		p.Drop(packet.CauseInterfaceDetached)
	}
}

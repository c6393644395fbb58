// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/peering"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// peeringRule is one (source VPC, destination VPC) exposure the
// flow-filter stage may admit traffic against.
type peeringRule struct {
	DstVPC   packet.VPCDiscriminant
	Exposure peering.Exposure
}

// PeeringPolicy is the set of exposures admitted from each source
// VPC, keyed by the source VPC discriminant. It is the published
// configuration the flow-filter stage consults for packets with no
// existing flow.
type PeeringPolicy struct {
	bySrcVPC map[packet.VPCDiscriminant][]peeringRule
}

// NewPeeringPolicy builds an empty policy.
func NewPeeringPolicy() *PeeringPolicy {
	return &PeeringPolicy{bySrcVPC: map[packet.VPCDiscriminant][]peeringRule{}}
}

// Allow admits traffic from srcVPC to dstVPC's exposure.
func (p *PeeringPolicy) Allow(srcVPC, dstVPC packet.VPCDiscriminant, exposure peering.Exposure) {
	p.bySrcVPC[srcVPC] = append(p.bySrcVPC[srcVPC], peeringRule{DstVPC: dstVPC, Exposure: exposure})
}

func (p *PeeringPolicy) destinationVPC(srcVPC packet.VPCDiscriminant, dst packet.Headers) (packet.VPCDiscriminant, bool) {
	if p == nil {
		return packet.VPCDiscriminant{}, false
	}
	dstIP, ok := dst.DestinationIP()
	if !ok {
		return packet.VPCDiscriminant{}, false
	}
	for _, rule := range p.bySrcVPC[srcVPC] {
		if rule.Exposure.Allows(dstIP) {
			return rule.DstVPC, true
		}
	}
	return packet.VPCDiscriminant{}, false
}

// FlowFilter implements spec.md §4.8 step 3: a packet that already
// carries flow info skips the policy check entirely (the flow's
// existence is the authorization); otherwise the packet's destination
// must fall within some peering exposure from its source VPC, which
// sets the destination VPC discriminant, or the packet is Filtered.
//
// The policy is published the same way every other table this
// pipeline reads is: a new gateway configuration generation swaps in
// a whole new PeeringPolicy rather than mutating the one in use.
type FlowFilter struct {
	policy *pubtable.Published[PeeringPolicy]
}

// NewFlowFilter returns a FlowFilter stage consulting policy.
func NewFlowFilter(policy *pubtable.Published[PeeringPolicy]) *FlowFilter {
	return &FlowFilter{policy: policy}
}

func (s *FlowFilter) Process(batch []*packet.Packet) {
	policy := s.policy.Load()
	for _, p := range batch {
		if p.IsDone() {
			continue
		}
		if p.Metadata.FlowInfo != nil {
			continue
		}
		dstVPC, ok := policy.destinationVPC(srcVPCOf(p), *p.Headers)
		if !ok {
			p.Drop(packet.CauseFiltered)
			continue
		}
		p.Metadata.DstVPC = &dstVPC
	}
}

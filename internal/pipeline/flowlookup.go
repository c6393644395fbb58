// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"github.com/fabricgate/gwcore/internal/flowtable"
	"github.com/fabricgate/gwcore/internal/packet"
)

// FlowLookup computes the canonical forward flow key for each packet
// and, on a hit, attaches the flow info to the packet's metadata so
// later stages skip their own table lookups. Grounded on
// original_source/flow-entry/src/flow_table/nf_lookup.rs's LookupNF.
type FlowLookup struct {
	flows *flowtable.Table
}

// NewFlowLookup returns a FlowLookup stage backed by flows.
func NewFlowLookup(flows *flowtable.Table) *FlowLookup {
	return &FlowLookup{flows: flows}
}

func (s *FlowLookup) Process(batch []*packet.Packet) {
	for _, p := range batch {
		if p.IsDone() {
			continue
		}
		key, ok := flowtable.NewKey(srcVPCOf(p), p.Metadata.DstVPC, p.Headers)
		if !ok {
			continue
		}
		if info, ok := s.flows.Lookup(key); ok {
			p.Metadata.FlowInfo = info
		}
	}
}

func srcVPCOf(p *packet.Packet) packet.VPCDiscriminant {
	if p.Metadata.SrcVPC != nil {
		return *p.Metadata.SrcVPC
	}
	return packet.VPCDiscriminant{}
}

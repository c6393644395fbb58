// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

import "net/netip"

// VPCDiscriminant identifies a tenant overlay network (VPC) by its
// VXLAN network identifier, without requiring the full VPC record.
// Packet metadata and flow keys carry discriminants rather than VPC
// names so the hot path never dereferences the configuration tree.
type VPCDiscriminant struct {
	VNI uint32
}

// Metadata is the per-packet record threaded through the pipeline
// alongside the buffer and parsed headers. Invariant: once Done is
// set to anything other than CauseNone, no stage may modify any field
// below except the stage that terminated the packet recording its own
// delivery cause, and counters external to this struct.
type Metadata struct {
	IngressIfIndex uint32
	EgressIfIndex  *uint32
	NextHopIP      *netip.Addr
	SrcVPC         *VPCDiscriminant
	DstVPC         *VPCDiscriminant
	VRF            *uint32
	Done           Cause
	Flags          Flags

	// FlowInfo holds an opaque reference to the matching flow-table
	// entry (internal/flowtable.Info), attached by the flow-lookup
	// stage so later stages skip their own table lookups. It is `any`
	// to avoid a package-level import cycle between packet and
	// flowtable: flowtable keys are built from packets, so flowtable
	// must import packet, not the reverse.
	FlowInfo any
}

// IsDone reports whether the packet has reached a terminal cause.
func (m *Metadata) IsDone() bool { return m.Done != CauseNone }

// SetDone sets the terminal cause if one is not already set. Setting
// it a second time is a programming error the caller should avoid;
// SetDone is a no-op once Done is non-zero, matching the "sticky
// cause" invariant.
func (m *Metadata) SetDone(cause Cause) {
	if m.Done == CauseNone {
		m.Done = cause
	}
}

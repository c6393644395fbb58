// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package v1 holds the data model a validated gateway configuration
// is expressed in, as described by spec §3. Nothing here parses CRDs,
// YAML, or JSON — that belongs to whatever configuration source feeds
// internal/gwconfig; this package only defines the shape the core
// accepts.
package v1

import "net/netip"

// GatewayConfig is a single, fully validated configuration handed to
// the core with a monotonically increasing Generation. Generation 0
// is reserved and never accepted — it means "no configuration yet".
type GatewayConfig struct {
	Generation    uint64
	Device        Device
	Underlay      Underlay
	Overlay       Overlay
	GatewayGroups []GatewayGroup
	Communities   []CommunityEntry
}

// Device identifies this gateway instance and the interfaces it
// owns. Interface.Name is resolved to a kernel ifindex by
// internal/kifsrc; the config layer never deals in ifindexes
// directly, since they are only stable for the lifetime of one boot.
type Device struct {
	Name       string
	Interfaces []DeviceInterface
}

// DeviceInterface attaches one named interface to a VRF (empty VRF
// name means the default/underlay VRF) with its configured addresses.
type DeviceInterface struct {
	Name      string
	VRF       string
	Addresses []netip.Prefix
}

// Underlay describes the fabric-facing configuration: the VTEP this
// gateway originates and terminates VXLAN traffic on.
type Underlay struct {
	VTEPAddress netip.Addr
	ASN         uint32 // 0 means the underlay does not run BGP
}

// Overlay holds every tenant network this gateway participates in.
type Overlay struct {
	VPCs     []VPC
	Peerings []VPCPeering
}

// VPC is one tenant overlay network, per spec §3: a 5-character id, a
// VNI, the device interfaces it is reachable on, and the peerings
// that reference it. Peerings is derived by GatewayConfig.Validate,
// not supplied by the configuration source.
type VPC struct {
	Name       string
	ID         string
	VNI        uint32
	Interfaces []string
	Peerings   []string
}

// VPCPeeringSide is one VPC's exposed CIDR policy within a peering:
// Allowed and Excluded bound what traffic the peering admits from
// this side, NAT optionally rewrites it.
type VPCPeeringSide struct {
	VPC      string
	Allowed  []netip.Prefix
	Excluded []netip.Prefix
	NAT      []netip.Prefix
}

// VPCPeering connects two VPC manifests bidirectionally.
type VPCPeering struct {
	Name string
	A    VPCPeeringSide
	B    VPCPeeringSide
}

// GatewayGroup names a set of gateways that act as one redundancy
// unit, e.g. for anycast VTEP addressing. Members are opaque peer
// identifiers (hostnames or loopback addresses); this layer does not
// interpret them.
type GatewayGroup struct {
	Name    string
	Members []string
}

// CommunityEntry tags a set of VPCs so overlay policy can refer to
// many VPCs by one name instead of enumerating them.
type CommunityEntry struct {
	Name string
	VPCs []string
}

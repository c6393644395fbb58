// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package configapply is the internal/gwconfig.Applier this module
// wires up in production: it projects an already-validated
// v1.GatewayConfig into the writer-side tables the forwarding
// pipeline actually reads (internal/iftable, internal/rib,
// internal/fib, the peering policy internal/pipeline.FlowFilter
// consults), mirroring the teacher's own "take already-parsed
// config, swap the writer-side state" shape in
// internal/allocator.SetPools.
package configapply

import (
	"fmt"
	"net/netip"

	"github.com/cespare/xxhash/v2"

	"github.com/fabricgate/gwcore/internal/fib"
	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/peering"
	"github.com/fabricgate/gwcore/internal/pipeline"
	"github.com/fabricgate/gwcore/internal/pubtable"
	"github.com/fabricgate/gwcore/internal/rib"
	"github.com/fabricgate/gwcore/internal/rmac"
	v1 "github.com/fabricgate/gwcore/pkg/apis/v1"
)

// VRFID derives a stable VRF identifier from a configuration-supplied
// VRF name. The empty name and "default" both map to
// rib.DefaultVRFID; every other name hashes to a 32-bit id that stays
// the same across generations, so a VRF's RIB, FIB, and interface
// attachments never drift apart as configuration is reapplied.
func VRFID(name string) uint32 {
	if name == "" || name == "default" {
		return rib.DefaultVRFID
	}
	return uint32(xxhash.Sum64String(name))
}

// Apply binds a committed v1.GatewayConfig to the writer-side tables
// a device actually forwards against. One Apply exists per device.
type Apply struct {
	ifaceWriter *iftable.Writer
	rib         *rib.RIB
	rmacPub     *pubtable.Published[rmac.Table]
	fibWriter   *fib.Writer
	policyPub   *pubtable.Published[pipeline.PeeringPolicy]
}

// New returns an Apply wired to the given writer-side tables. rmacPub
// is read, never written, so Apply can feed the current router-MAC
// snapshot to the FIB projector without owning router-MAC state
// itself.
func New(
	ifaceWriter *iftable.Writer,
	r *rib.RIB,
	rmacPub *pubtable.Published[rmac.Table],
	fibWriter *fib.Writer,
	policyPub *pubtable.Published[pipeline.PeeringPolicy],
) *Apply {
	return &Apply{
		ifaceWriter: ifaceWriter,
		rib:         r,
		rmacPub:     rmacPub,
		fibWriter:   fibWriter,
		policyPub:   policyPub,
	}
}

// Apply is an internal/gwconfig.Applier: it attaches device
// interfaces to their VRF, builds the peering policy the flow-filter
// stage consults, and reprojects every VRF's FIB so the new
// generation's forwarding state is live before it returns.
func (a *Apply) Apply(cfg v1.GatewayConfig) error {
	if err := a.applyInterfaces(cfg); err != nil {
		return err
	}
	a.ifaceWriter.Publish()

	if err := a.applyPeering(cfg); err != nil {
		return err
	}

	rmacTable := a.rmacPub.Load()
	for _, vrf := range a.rib.VRFs() {
		a.fibWriter.ProjectVRF(vrf, rmacTable)
	}
	a.fibWriter.Publish()
	return nil
}

func (a *Apply) applyInterfaces(cfg v1.GatewayConfig) error {
	for _, di := range cfg.Device.Interfaces {
		iface, ok := a.ifaceWriter.FindByName(di.Name)
		if !ok {
			return fmt.Errorf("configapply: interface %q not found; the kernel interface source must sync before configuration referencing it is applied", di.Name)
		}
		iface.Attachment = iftable.Attachment{Kind: iftable.AttachmentVRF, VRF: VRFID(di.VRF)}
		iface.Addresses = mergeAddresses(iface.Addresses, di.Addresses)
		if err := a.ifaceWriter.AddOrUpdate(iface); err != nil {
			return fmt.Errorf("configapply: interface %q: %w", di.Name, err)
		}
		a.rib.EnsureVRF(VRFID(di.VRF), di.VRF)
	}
	return nil
}

// applyPeering rebuilds the peering policy from scratch every
// generation, the same full-reprojection choice internal/fib.Writer
// makes for the FIB: a whole new PeeringPolicy swaps in atomically
// rather than patching the one in use. cfg has already passed
// v1.GatewayConfig.Validate (internal/gwconfig.Commit runs it before
// Apply), so every VPC and peering reference here is known to
// resolve; what Validate does not check is that an excluded prefix
// nests inside the allowed prefix it carves into, which is exactly
// the invariant peering.Exposure.Validate enforces.
func (a *Apply) applyPeering(cfg v1.GatewayConfig) error {
	vnis := make(map[string]uint32, len(cfg.Overlay.VPCs))
	for _, vpc := range cfg.Overlay.VPCs {
		vnis[vpc.Name] = vpc.VNI
	}

	policy := pipeline.NewPeeringPolicy()
	for _, peer := range cfg.Overlay.Peerings {
		aDisc := packet.VPCDiscriminant{VNI: vnis[peer.A.VPC]}
		bDisc := packet.VPCDiscriminant{VNI: vnis[peer.B.VPC]}
		// Traffic from B is admitted into the CIDRs A exposes, and
		// vice versa.
		if err := allow(policy, bDisc, aDisc, peer.A); err != nil {
			return fmt.Errorf("configapply: peering %q: %w", peer.Name, err)
		}
		if err := allow(policy, aDisc, bDisc, peer.B); err != nil {
			return fmt.Errorf("configapply: peering %q: %w", peer.Name, err)
		}
	}
	a.policyPub.Publish(policy)
	return nil
}

func allow(policy *pipeline.PeeringPolicy, from, to packet.VPCDiscriminant, side v1.VPCPeeringSide) error {
	for _, excl := range side.Excluded {
		contained := false
		for _, cidr := range side.Allowed {
			if prefixContains(cidr, excl) {
				contained = true
				break
			}
		}
		if !contained {
			return fmt.Errorf("excluded prefix %s is not contained within any allowed prefix", excl)
		}
	}
	for _, cidr := range side.Allowed {
		exposure := peering.Exposure{CIDR: cidr}
		for _, excl := range side.Excluded {
			if prefixContains(cidr, excl) {
				exposure.Exclude = append(exposure.Exclude, excl)
			}
		}
		if err := exposure.Validate(); err != nil {
			return err
		}
		policy.Allow(from, to, exposure)
	}
	return nil
}

func prefixContains(outer, inner netip.Prefix) bool {
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Addr())
}

// mergeAddresses adds any configured address not already present,
// the same dedup rule internal/feeder.TableHandler.AddIfAddress
// applies for route-feeder-sourced addresses.
func mergeAddresses(existing, configured []netip.Prefix) []netip.Prefix {
	for _, p := range configured {
		found := false
		for _, e := range existing {
			if e == p {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, p)
		}
	}
	return existing
}

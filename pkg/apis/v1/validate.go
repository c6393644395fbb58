// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package v1

import (
	"fmt"
	"net"
	"net/netip"

	go_cidr "github.com/apparentlymart/go-cidr/cidr"
)

// ValidationError reports one structural defect found while
// validating a GatewayConfig, per spec §7: missing fields, duplicate
// identifiers, overlapping prefixes, or references to unknown
// entities. Validate returns it directly as a *ValidationError, so
// callers can recover it with errors.As; it carries only a message,
// and this package does not itself define a Kind enumeration — that
// lives in internal/gwconfig, which is what actually surfaces
// configuration errors to operators.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Validate checks structural invariants spec §7 requires before a
// configuration may be applied, and fills in VPC.Peerings from the
// peering table. It mutates cfg.Overlay.VPCs in place (by index) so
// Peerings is populated on the same value the caller goes on to use.
func (cfg *GatewayConfig) Validate() error {
	if cfg.Generation == 0 {
		return invalid("generation id 0 is reserved for \"blank\"")
	}
	if cfg.Device.Name == "" {
		return invalid("device name is required")
	}
	if !cfg.Underlay.VTEPAddress.IsValid() {
		return invalid("underlay VTEP address is required")
	}

	ifaceNames := make(map[string]bool, len(cfg.Device.Interfaces))
	for _, intf := range cfg.Device.Interfaces {
		if intf.Name == "" {
			return invalid("device interface with empty name")
		}
		if ifaceNames[intf.Name] {
			return invalid("duplicate device interface %q", intf.Name)
		}
		ifaceNames[intf.Name] = true
	}

	if err := validateVPCs(cfg.Overlay.VPCs, ifaceNames); err != nil {
		return err
	}
	if err := validatePeerings(cfg.Overlay.VPCs, cfg.Overlay.Peerings); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.GatewayGroups))
	for _, g := range cfg.GatewayGroups {
		if g.Name == "" {
			return invalid("gateway group with empty name")
		}
		if seen[g.Name] {
			return invalid("duplicate gateway group %q", g.Name)
		}
		seen[g.Name] = true
	}

	vpcByName := vpcIndex(cfg.Overlay.VPCs)
	communitySeen := make(map[string]bool, len(cfg.Communities))
	for _, c := range cfg.Communities {
		if c.Name == "" {
			return invalid("community with empty name")
		}
		if communitySeen[c.Name] {
			return invalid("duplicate community %q", c.Name)
		}
		communitySeen[c.Name] = true
		for _, vpc := range c.VPCs {
			if _, ok := vpcByName[vpc]; !ok {
				return invalid("community %q references unknown VPC %q", c.Name, vpc)
			}
		}
	}

	return nil
}

func validateVPCs(vpcs []VPC, ifaceNames map[string]bool) error {
	names := make(map[string]bool, len(vpcs))
	ids := make(map[string]bool, len(vpcs))
	vnis := make(map[uint32]bool, len(vpcs))
	for i := range vpcs {
		vpc := &vpcs[i]
		if vpc.Name == "" {
			return invalid("VPC with empty name")
		}
		if names[vpc.Name] {
			return invalid("duplicate VPC name %q", vpc.Name)
		}
		names[vpc.Name] = true

		if len(vpc.ID) != 5 {
			return invalid("VPC %q id %q must be exactly 5 characters", vpc.Name, vpc.ID)
		}
		if ids[vpc.ID] {
			return invalid("duplicate VPC id %q", vpc.ID)
		}
		ids[vpc.ID] = true

		if vnis[vpc.VNI] {
			return invalid("duplicate VPC VNI %d (VPC %q)", vpc.VNI, vpc.Name)
		}
		vnis[vpc.VNI] = true

		for _, ifName := range vpc.Interfaces {
			if !ifaceNames[ifName] {
				return invalid("VPC %q references unknown device interface %q", vpc.Name, ifName)
			}
		}
		vpc.Peerings = nil
	}
	return nil
}

func vpcIndex(vpcs []VPC) map[string]*VPC {
	idx := make(map[string]*VPC, len(vpcs))
	for i := range vpcs {
		idx[vpcs[i].Name] = &vpcs[i]
	}
	return idx
}

func validatePeerings(vpcs []VPC, peerings []VPCPeering) error {
	idx := vpcIndex(vpcs)
	names := make(map[string]bool, len(peerings))
	for _, p := range peerings {
		if p.Name == "" {
			return invalid("VPC peering with empty name")
		}
		if names[p.Name] {
			return invalid("duplicate VPC peering %q", p.Name)
		}
		names[p.Name] = true

		if err := validatePeeringSide(p.Name, p.A, idx); err != nil {
			return err
		}
		if err := validatePeeringSide(p.Name, p.B, idx); err != nil {
			return err
		}
		if p.A.VPC == p.B.VPC {
			return invalid("VPC peering %q connects VPC %q to itself", p.Name, p.A.VPC)
		}

		idx[p.A.VPC].Peerings = append(idx[p.A.VPC].Peerings, p.Name)
		idx[p.B.VPC].Peerings = append(idx[p.B.VPC].Peerings, p.Name)
	}
	return nil
}

func validatePeeringSide(peeringName string, side VPCPeeringSide, idx map[string]*VPC) error {
	if _, ok := idx[side.VPC]; !ok {
		return invalid("VPC peering %q references unknown VPC %q", peeringName, side.VPC)
	}
	if len(side.Allowed) == 0 {
		return invalid("VPC peering %q side %q has no allowed prefixes", peeringName, side.VPC)
	}
	if err := verifyNoOverlap(side.Allowed); err != nil {
		return invalid("VPC peering %q side %q: allowed prefixes overlap: %v", peeringName, side.VPC, err)
	}
	if err := verifyNoOverlap(side.Excluded); err != nil {
		return invalid("VPC peering %q side %q: excluded prefixes overlap: %v", peeringName, side.VPC, err)
	}
	return nil
}

// verifyNoOverlap reports whether any two prefixes in the list cover
// a common address, using the same algorithm the teacher's allocator
// package used for pool-overlap checks (github.com/apparentlymart/go-cidr),
// generalized here from net.IPNet to netip.Prefix.
func verifyNoOverlap(prefixes []netip.Prefix) error {
	nets := make([]*net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		ipnet := toIPNet(p)
		if err := go_cidr.VerifyNoOverlap(nets, ipnet); err != nil {
			return err
		}
		nets = append(nets, ipnet)
	}
	return nil
}

func toIPNet(p netip.Prefix) *net.IPNet {
	addr := p.Addr()
	return &net.IPNet{
		IP:   addr.AsSlice(),
		Mask: net.CIDRMask(p.Bits(), addr.BitLen()),
	}
}

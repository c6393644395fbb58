// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package v1_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/fabricgate/gwcore/pkg/apis/v1"
)

func validConfig() v1.GatewayConfig {
	return v1.GatewayConfig{
		Generation: 1,
		Device: v1.Device{
			Name: "gw-1",
			Interfaces: []v1.DeviceInterface{
				{Name: "eth0", VRF: ""},
				{Name: "eth1", VRF: ""},
			},
		},
		Underlay: v1.Underlay{VTEPAddress: netip.MustParseAddr("10.0.0.1")},
		Overlay: v1.Overlay{
			VPCs: []v1.VPC{
				{Name: "blue", ID: "vpc01", VNI: 100, Interfaces: []string{"eth0"}},
				{Name: "red", ID: "vpc02", VNI: 200, Interfaces: []string{"eth1"}},
			},
			Peerings: []v1.VPCPeering{
				{
					Name: "blue-red",
					A:    v1.VPCPeeringSide{VPC: "blue", Allowed: []netip.Prefix{netip.MustParsePrefix("10.1.0.0/24")}},
					B:    v1.VPCPeeringSide{VPC: "red", Allowed: []netip.Prefix{netip.MustParsePrefix("10.2.0.0/24")}},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"blue-red"}, cfg.Overlay.VPCs[0].Peerings)
	assert.Equal(t, []string{"blue-red"}, cfg.Overlay.VPCs[1].Peerings)
}

func TestValidateRejectsZeroGeneration(t *testing.T) {
	cfg := validConfig()
	cfg.Generation = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsShortVPCID(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.VPCs[0].ID = "abc"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateVNI(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.VPCs[1].VNI = cfg.Overlay.VPCs[0].VNI
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownInterfaceReference(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.VPCs[0].Interfaces = []string{"eth9"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsPeeringToUnknownVPC(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.Peerings[0].B.VPC = "green"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSelfPeering(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.Peerings[0].B.VPC = cfg.Overlay.Peerings[0].A.VPC
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOverlappingAllowedPrefixes(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.Peerings[0].A.Allowed = []netip.Prefix{
		netip.MustParsePrefix("10.1.0.0/24"),
		netip.MustParsePrefix("10.1.0.0/25"),
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownCommunityVPC(t *testing.T) {
	cfg := validConfig()
	cfg.Communities = []v1.CommunityEntry{{Name: "all", VPCs: []string{"blue", "purple"}}}
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsKnownCommunity(t *testing.T) {
	cfg := validConfig()
	cfg.Communities = []v1.CommunityEntry{{Name: "all", VPCs: []string{"blue", "red"}}}
	assert.NoError(t, cfg.Validate())
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package peering

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prefix(s string) netip.Prefix { return netip.MustParsePrefix(s) }
func addr(s string) netip.Addr    { return netip.MustParseAddr(s) }

func TestExposureAllowsWithinCIDR(t *testing.T) {
	e := Exposure{CIDR: prefix("10.0.0.0/24")}
	assert.True(t, e.Allows(addr("10.0.0.5")))
	assert.False(t, e.Allows(addr("10.0.1.5")))
}

func TestExposureAllowsRespectsExclusion(t *testing.T) {
	e := Exposure{CIDR: prefix("10.0.0.0/24"), Exclude: []netip.Prefix{prefix("10.0.0.128/25")}}
	assert.True(t, e.Allows(addr("10.0.0.5")))
	assert.False(t, e.Allows(addr("10.0.0.200")))
}

func TestExposureValidateRejectsExclusionOutsideCIDR(t *testing.T) {
	e := Exposure{CIDR: prefix("10.0.0.0/24"), Exclude: []netip.Prefix{prefix("10.0.1.0/25")}}
	assert.Error(t, e.Validate())
}

func TestValidatePeeringAcceptsDisjointCIDRs(t *testing.T) {
	a := Exposure{CIDR: prefix("10.0.0.0/24")}
	b := Exposure{CIDR: prefix("10.0.1.0/24")}
	require.NoError(t, ValidatePeering(a, b))
}

func TestValidatePeeringRejectsOverlappingCIDRs(t *testing.T) {
	a := Exposure{CIDR: prefix("10.0.0.0/23")}
	b := Exposure{CIDR: prefix("10.0.1.0/24")}
	assert.Error(t, ValidatePeering(a, b))
}

func TestValidatePeeringPropagatesExclusionError(t *testing.T) {
	a := Exposure{CIDR: prefix("10.0.0.0/24"), Exclude: []netip.Prefix{prefix("192.168.0.0/24")}}
	b := Exposure{CIDR: prefix("172.16.0.0/24")}
	assert.Error(t, ValidatePeering(a, b))
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package rib

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasDefaultVRF(t *testing.T) {
	r := New()
	v, ok := r.VRF(DefaultVRFID)
	require.True(t, ok)
	assert.Equal(t, "default", v.Name)
}

func TestEnsureVRFIsIdempotent(t *testing.T) {
	r := New()
	a := r.EnsureVRF(5, "blue")
	b := r.EnsureVRF(5, "blue")
	assert.Same(t, a, b)
}

func TestAddAndDelRoute(t *testing.T) {
	r := New()
	v := r.EnsureVRF(1, "blue")
	nh := v.Arena.Alloc(NextHop{Action: ActionForward})
	prefix := netip.MustParsePrefix("10.0.0.0/24")

	require.NoError(t, v.AddRoute(prefix, OriginStatic, []NextHopID{nh}))
	route, ok := v.Routes[prefix]
	require.True(t, ok)
	assert.Equal(t, OriginStatic, route.Origin)

	v.DelRoute(prefix)
	_, ok = v.Routes[prefix]
	assert.False(t, ok)
}

func TestValidateDepthRejectsCycle(t *testing.T) {
	v := newVRF(1, "blue")
	a := v.Arena.Alloc(NextHop{})
	b := v.Arena.Alloc(NextHop{Resolvers: []NextHopID{a}})
	v.Arena.nodes[a].Resolvers = []NextHopID{b}

	err := v.Arena.ValidateDepth(a)
	assert.Error(t, err)
}

func TestValidateDepthRejectsTooDeepChain(t *testing.T) {
	v := newVRF(1, "blue")
	leaf := v.Arena.Alloc(NextHop{Action: ActionForward})
	cur := leaf
	for i := 0; i < MaxResolutionDepth+2; i++ {
		cur = v.Arena.Alloc(NextHop{Resolvers: []NextHopID{cur}})
	}
	err := v.Arena.ValidateDepth(cur)
	assert.Error(t, err)
}

func TestValidateDepthAcceptsTypicalChain(t *testing.T) {
	v := newVRF(1, "blue")
	vtep := v.Arena.Alloc(NextHop{Action: ActionForward})
	evpn := v.Arena.Alloc(NextHop{Resolvers: []NextHopID{vtep}})
	bgp := v.Arena.Alloc(NextHop{Resolvers: []NextHopID{evpn}})
	egress := v.Arena.Alloc(NextHop{Resolvers: []NextHopID{bgp}})

	assert.NoError(t, v.Arena.ValidateDepth(egress))
}

func TestAddRouteRejectsInvalidNextHop(t *testing.T) {
	v := newVRF(1, "blue")
	bogus := NextHopID(999)
	err := v.AddRoute(netip.MustParsePrefix("10.0.0.0/24"), OriginStatic, []NextHopID{bogus})
	assert.Error(t, err)
}

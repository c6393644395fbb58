// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package fib

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgate/gwcore/internal/pubtable"
	"github.com/fabricgate/gwcore/internal/rib"
)

func TestWriterProjectAndPublishLongestPrefixWins(t *testing.T) {
	var pub pubtable.Published[Tables]
	w := NewWriter(&pub)

	r := rib.New()
	vrf, _ := r.VRF(rib.DefaultVRFID)

	broadIf := uint32(1)
	narrowIf := uint32(2)
	broadNh := vrf.Arena.Alloc(rib.NextHop{IfIndex: &broadIf})
	narrowNh := vrf.Arena.Alloc(rib.NextHop{IfIndex: &narrowIf})
	require.NoError(t, vrf.AddRoute(netip.MustParsePrefix("10.0.0.0/8"), rib.OriginStatic, []rib.NextHopID{broadNh}))
	require.NoError(t, vrf.AddRoute(netip.MustParsePrefix("10.0.0.0/24"), rib.OriginStatic, []rib.NextHopID{narrowNh}))

	w.ProjectVRF(vrf, nil)
	w.Publish()

	snap := pub.Load()
	vrfFib, ok := snap.VRF(rib.DefaultVRFID)
	require.True(t, ok)

	group, ok := vrfFib.Lookup(netip.MustParseAddr("10.0.0.5"))
	require.True(t, ok)
	last := group.Entries[0].Instructions[len(group.Entries[0].Instructions)-1]
	assert.Equal(t, narrowIf, *last.EgressIfIndex, "longest prefix match must win")

	group, ok = vrfFib.Lookup(netip.MustParseAddr("10.5.0.5"))
	require.True(t, ok)
	last = group.Entries[0].Instructions[len(group.Entries[0].Instructions)-1]
	assert.Equal(t, broadIf, *last.EgressIfIndex)
}

func TestLookupMissReturnsFalse(t *testing.T) {
	var pub pubtable.Published[Tables]
	w := NewWriter(&pub)
	w.ProjectVRF(rib.New().VRFs()[0], nil)
	w.Publish()

	vrfFib, ok := pub.Load().VRF(rib.DefaultVRFID)
	require.True(t, ok)
	_, ok = vrfFib.Lookup(netip.MustParseAddr("192.0.2.1"))
	assert.False(t, ok)
}

func TestUnknownVRFMiss(t *testing.T) {
	var pub pubtable.Published[Tables]
	w := NewWriter(&pub)
	w.Publish()
	_, ok := pub.Load().VRF(99)
	assert.False(t, ok)
}

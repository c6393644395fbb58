// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package natpf

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

func TestPortRangeMapping(t *testing.T) {
	r1, err := NewPortRange(100, 200)
	require.NoError(t, err)
	r2, err := NewPortRange(1100, 1200)
	require.NoError(t, err)

	mapped, ok := r1.MapPortTo(100, r2)
	require.True(t, ok)
	assert.Equal(t, uint16(1100), mapped)

	mapped, ok = r1.MapPortTo(200, r2)
	require.True(t, ok)
	assert.Equal(t, uint16(1200), mapped)

	_, ok = r1.MapPortTo(201, r2)
	assert.False(t, ok)
}

func TestPortRangeSingleton(t *testing.T) {
	r, err := NewPortRange(80, 80)
	require.NoError(t, err)
	assert.True(t, r.IsSingleton())
	assert.Equal(t, 1, r.Len())
}

func TestNewPortRangeRejectsZeroAndInverted(t *testing.T) {
	_, err := NewPortRange(0, 10)
	assert.Error(t, err)
	_, err = NewPortRange(10, 1)
	assert.Error(t, err)
}

func extPorts(first, last uint16) PortRange {
	r, _ := NewPortRange(first, last)
	return r
}

// TestScenarioBPortForwardRuleLookup mirrors Scenario B: a single
// external port forwarded to an internal backend port in another VPC.
func TestScenarioBPortForwardRuleLookup(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)

	extVPC := packet.VPCDiscriminant{VNI: 1}
	intVPC := packet.VPCDiscriminant{VNI: 2}
	vip := netip.MustParseAddr("198.51.100.1")
	backend := netip.MustParseAddr("10.0.0.5")

	key := Key{SrcVPC: extVPC, DstIP: vip, Proto: packet.ProtoTCP, ExtPorts: extPorts(8080, 8080)}
	entry := Entry{DstVPC: intVPC, DstIP: backend, IntPorts: extPorts(80, 80)}
	require.NoError(t, w.AddRule(key, entry))
	w.Publish()

	tbl := pub.Load()
	got, newPort, ok := tbl.LookupRule(extVPC, vip, packet.ProtoTCP, 8080)
	require.True(t, ok)
	assert.Equal(t, backend, got.DstIP)
	assert.Equal(t, uint16(80), newPort)
}

func TestAddRuleRejectsSameVPC(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)
	vpc := packet.VPCDiscriminant{VNI: 1}
	key := Key{SrcVPC: vpc, DstIP: netip.MustParseAddr("10.0.0.1"), Proto: packet.ProtoTCP, ExtPorts: extPorts(80, 80)}
	entry := Entry{DstVPC: vpc, DstIP: netip.MustParseAddr("10.0.0.2"), IntPorts: extPorts(80, 80)}
	assert.Error(t, w.AddRule(key, entry))
}

func TestAddRuleRejectsMismatchedFamilies(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)
	key := Key{SrcVPC: packet.VPCDiscriminant{VNI: 1}, DstIP: netip.MustParseAddr("10.0.0.1"), Proto: packet.ProtoTCP, ExtPorts: extPorts(80, 80)}
	entry := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("2001:db8::1"), IntPorts: extPorts(80, 80)}
	assert.Error(t, w.AddRule(key, entry))
}

func TestAddRuleIsIdempotentForIdenticalRule(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)
	key := Key{SrcVPC: packet.VPCDiscriminant{VNI: 1}, DstIP: netip.MustParseAddr("10.0.0.1"), Proto: packet.ProtoTCP, ExtPorts: extPorts(80, 80)}
	entry := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("10.0.0.2"), IntPorts: extPorts(80, 80)}
	require.NoError(t, w.AddRule(key, entry))
	assert.NoError(t, w.AddRule(key, entry))
}

func TestAddRuleRejectsOverlappingRange(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)
	vpc := packet.VPCDiscriminant{VNI: 1}
	dst := netip.MustParseAddr("10.0.0.1")
	key1 := Key{SrcVPC: vpc, DstIP: dst, Proto: packet.ProtoTCP, ExtPorts: extPorts(100, 200)}
	entry1 := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("10.0.0.2"), IntPorts: extPorts(100, 200)}
	require.NoError(t, w.AddRule(key1, entry1))

	key2 := Key{SrcVPC: vpc, DstIP: dst, Proto: packet.ProtoTCP, ExtPorts: extPorts(150, 250)}
	entry2 := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("10.0.0.3"), IntPorts: extPorts(150, 250)}
	assert.Error(t, w.AddRule(key2, entry2))
}

func TestAddRuleRejectsFullyNestedRange(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)
	vpc := packet.VPCDiscriminant{VNI: 1}
	dst := netip.MustParseAddr("10.0.0.1")
	key1 := Key{SrcVPC: vpc, DstIP: dst, Proto: packet.ProtoTCP, ExtPorts: extPorts(100, 200)}
	entry1 := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("10.0.0.2"), IntPorts: extPorts(100, 200)}
	require.NoError(t, w.AddRule(key1, entry1))

	// 120-150 touches neither endpoint of 100-200 but is fully
	// contained within it.
	key2 := Key{SrcVPC: vpc, DstIP: dst, Proto: packet.ProtoTCP, ExtPorts: extPorts(120, 150)}
	entry2 := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("10.0.0.3"), IntPorts: extPorts(120, 150)}
	assert.Error(t, w.AddRule(key2, entry2))
}

func TestRemoveRule(t *testing.T) {
	var pub pubtable.Published[Table]
	w := NewWriter(&pub)
	vpc := packet.VPCDiscriminant{VNI: 1}
	key := Key{SrcVPC: vpc, DstIP: netip.MustParseAddr("10.0.0.1"), Proto: packet.ProtoUDP, ExtPorts: extPorts(53, 53)}
	entry := Entry{DstVPC: packet.VPCDiscriminant{VNI: 2}, DstIP: netip.MustParseAddr("10.0.0.2"), IntPorts: extPorts(53, 53)}
	require.NoError(t, w.AddRule(key, entry))
	w.Publish()
	require.Equal(t, 1, pub.Load().Len())

	w.RemoveRule(key)
	w.Publish()
	assert.Equal(t, 0, pub.Load().Len())
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package flowtable

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgate/gwcore/internal/packet"
)

func udpHeaders(src, dst string, srcPort, dstPort uint16) *packet.Headers {
	return &packet.Headers{
		IPv4: &packet.IPv4Header{
			Protocol:    packet.ProtoUDP,
			Source:      netip.MustParseAddr(src),
			Destination: netip.MustParseAddr(dst),
		},
		UDP: &packet.UDPHeader{SourcePort: srcPort, DestinationPort: dstPort},
	}
}

// TestCanonicalKeyReverseMatchesReplyKey is testable property 2: the
// canonical flow key of a packet and the reverse of the canonical key
// of its symmetric reply are identical (modulo NAT state, which the
// key itself never carries).
func TestCanonicalKeyReverseMatchesReplyKey(t *testing.T) {
	vpc := packet.VPCDiscriminant{VNI: 100}

	fwd, ok := NewKey(vpc, nil, udpHeaders("10.0.0.1", "10.0.0.2", 5000, 53))
	require.True(t, ok)

	reply, ok := NewKey(vpc, nil, udpHeaders("10.0.0.2", "10.0.0.1", 53, 5000))
	require.True(t, ok)

	assert.Equal(t, fwd, reply.Reverse())
}

// TestInsertThenLookupExpiresAtNeverDecreases is testable property 5:
// insert(k, v) followed by lookup(k) returns a value whose expires-at
// is at least the expires-at passed to insert.
func TestInsertThenLookupExpiresAtNeverDecreases(t *testing.T) {
	tbl := New()
	vpc := packet.VPCDiscriminant{VNI: 1}
	k, ok := NewKey(vpc, nil, udpHeaders("10.0.0.1", "10.0.0.2", 1, 2))
	require.True(t, ok)

	expiry := time.Unix(1_700_000_000, 0)
	info := NewInfo(StatusNew, expiry, nil, nil)
	tbl.Insert(k, info)

	got, ok := tbl.Lookup(k)
	require.True(t, ok)
	assert.True(t, !got.ExpiresAt().Before(expiry))

	info.Extend(expiry.Add(time.Minute))
	got, ok = tbl.Lookup(k)
	require.True(t, ok)
	assert.True(t, !got.ExpiresAt().Before(expiry))
}

func TestInsertPairIsReachableFromBothDirections(t *testing.T) {
	tbl := New()
	vpc := packet.VPCDiscriminant{VNI: 1}
	fwd, ok := NewKey(vpc, nil, udpHeaders("10.0.0.1", "10.0.0.2", 1, 2))
	require.True(t, ok)

	info := NewInfo(StatusActive, time.Unix(1_700_000_000, 0), nil, nil)
	tbl.InsertPair(fwd, info)

	got, ok := tbl.Lookup(fwd)
	require.True(t, ok)
	assert.Same(t, info, got)

	got, ok = tbl.Lookup(fwd.Reverse())
	require.True(t, ok)
	assert.Same(t, info, got)
}

// TestExpireDueRetainsNonZeroRefcountAsClosed covers the "non-zero
// reference count survives expiry as Closed" rule from spec.md §3.
func TestExpireDueRetainsNonZeroRefcountAsClosed(t *testing.T) {
	tbl := New()
	vpc := packet.VPCDiscriminant{VNI: 1}
	k, ok := NewKey(vpc, nil, udpHeaders("10.0.0.1", "10.0.0.2", 1, 2))
	require.True(t, ok)

	past := time.Unix(1_700_000_000, 0)
	info := NewInfo(StatusActive, past, nil, nil)
	info.Retain()
	tbl.Insert(k, info)

	tbl.ExpireDue(past.Add(time.Second))

	got, ok := tbl.Lookup(k)
	require.True(t, ok, "a retained entry must survive the sweep")
	assert.Equal(t, StatusClosed, got.Status())

	info.Release()
	tbl.ExpireDue(past.Add(time.Second))
	_, ok = tbl.Lookup(k)
	assert.False(t, ok, "once released, the next sweep must reclaim the entry")
}

func TestExpireDueLeavesUnexpiredEntriesAlone(t *testing.T) {
	tbl := New()
	vpc := packet.VPCDiscriminant{VNI: 1}
	k, ok := NewKey(vpc, nil, udpHeaders("10.0.0.1", "10.0.0.2", 1, 2))
	require.True(t, ok)

	future := time.Unix(1_700_000_000, 0).Add(time.Hour)
	info := NewInfo(StatusActive, future, nil, nil)
	tbl.Insert(k, info)

	tbl.ExpireDue(time.Unix(1_700_000_000, 0))

	got, ok := tbl.Lookup(k)
	require.True(t, ok)
	assert.Equal(t, StatusActive, got.Status())
}

// TestScenarioCPortForwardReplyFlow mirrors Scenario C: an inbound
// port-forwarded flow installs a DstNat entry; the reply direction,
// keyed by the forwarded external address and port, must resolve
// through the reverse key to the same NAT state.
func TestScenarioCPortForwardReplyFlow(t *testing.T) {
	tbl := New()
	extVPC := packet.VPCDiscriminant{VNI: 1}

	// external client -> VIP:8080, forwarded to backend 10.0.0.5:80
	inbound, ok := NewKey(extVPC, nil, udpHeaders("203.0.113.10", "198.51.100.1", 40000, 8080))
	require.True(t, ok)

	nat := &NATState{Action: NATActionDstNat, ReplacementIP: netip.MustParseAddr("10.0.0.5"), ReplacementPort: 80}
	info := NewInfo(StatusActive, time.Unix(1_700_000_000, 0).Add(time.Minute), nat, nil)
	tbl.InsertPair(inbound, info)

	// reply from VIP:8080 back to the client must key to the same Info
	// via the reverse lookup.
	backendReply, ok := NewKey(extVPC, nil, udpHeaders("198.51.100.1", "203.0.113.10", 8080, 40000))
	require.True(t, ok)

	got, ok := tbl.Lookup(backendReply)
	require.True(t, ok)
	assert.Same(t, info, got)
	assert.Equal(t, NATActionDstNat, got.NAT.Action)
}

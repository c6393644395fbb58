// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEthIPv4UDP assembles a minimal Ethernet+IPv4+UDP frame for
// parser tests.
func buildEthIPv4UDP(t *testing.T, src, dst netip.Addr, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	udpLen := udpHeaderLen + len(payload)
	ipLen := ipv4MinHeaderLen + udpLen
	frame := make([]byte, ethernetHeaderLen+ipLen)

	copy(frame[0:6], []byte{0xaa, 0xbb, 0xcc, 0, 0, 1})
	copy(frame[6:12], []byte{0xaa, 0xbb, 0xcc, 0, 0, 2})
	binary.BigEndian.PutUint16(frame[12:14], uint16(EtherTypeIPv4))

	ip := frame[ethernetHeaderLen:]
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipLen))
	ip[8] = 64
	ip[9] = byte(ProtoUDP)
	s4, d4 := src.As4(), dst.As4()
	copy(ip[12:16], s4[:])
	copy(ip[16:20], d4[:])

	udp := ip[ipv4MinHeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	copy(udp[udpHeaderLen:], payload)

	return frame
}

func TestParseEthIPv4UDP(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")
	raw := buildEthIPv4UDP(t, src, dst, 1234, 53, []byte("hi"))

	h, cause := ParseHeaders(raw)
	require.Equal(t, CauseNone, cause)
	require.NotNil(t, h.Eth)
	require.NotNil(t, h.IPv4)
	require.NotNil(t, h.UDP)
	assert.Equal(t, src, h.IPv4.Source)
	assert.Equal(t, dst, h.IPv4.Destination)
	assert.Equal(t, uint16(1234), h.UDP.SourcePort)
	assert.Equal(t, uint16(53), h.UDP.DestinationPort)
}

func TestParseSingleVLANTag(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")
	inner := buildEthIPv4UDP(t, src, dst, 1, 2, nil)

	raw := make([]byte, 0, len(inner)+vlanTagLen)
	raw = append(raw, inner[0:12]...)
	vlan := make([]byte, vlanTagLen)
	binary.BigEndian.PutUint16(vlan[0:2], 100)
	binary.BigEndian.PutUint16(vlan[2:4], uint16(EtherTypeIPv4))
	raw = append(raw, vlan...)
	binary.BigEndian.PutUint16(raw[12:14], uint16(EtherTypeVLAN))
	raw = append(raw, inner[ethernetHeaderLen:]...)

	h, cause := ParseHeaders(raw)
	require.Equal(t, CauseNone, cause)
	require.Len(t, h.VLANs, 1)
	assert.Equal(t, uint16(100), h.VLANs[0].VID)
	require.NotNil(t, h.IPv4)
}

func TestParseTruncatedEthernetFails(t *testing.T) {
	h, cause := ParseHeaders([]byte{1, 2, 3})
	assert.Equal(t, CauseNotEthernet, cause)
	assert.Nil(t, h.Eth)
}

func TestParseNonIPEtherType(t *testing.T) {
	raw := make([]byte, ethernetHeaderLen)
	binary.BigEndian.PutUint16(raw[12:14], uint16(EtherTypeARP))
	h, cause := ParseHeaders(raw)
	assert.Equal(t, CauseNotIP, cause)
	assert.NotNil(t, h.Eth)
	assert.Nil(t, h.IPv4)
}

func TestParseTruncatedIPv4Fails(t *testing.T) {
	raw := make([]byte, ethernetHeaderLen+10)
	binary.BigEndian.PutUint16(raw[12:14], uint16(EtherTypeIPv4))
	raw[ethernetHeaderLen] = 0x45
	h, cause := ParseHeaders(raw)
	assert.Equal(t, CauseMalformed, cause)
	assert.Nil(t, h.IPv4)
}

func TestPacketParseStickyCause(t *testing.T) {
	raw := make([]byte, ethernetHeaderLen)
	binary.BigEndian.PutUint16(raw[12:14], uint16(EtherTypeARP))
	buf := WrapBuffer(raw, 0)
	p := Parse(buf, 7)

	require.True(t, p.IsDone())
	assert.Equal(t, CauseNotIP, p.Metadata.Done)

	// Further drops must not override the cause already recorded.
	p.Drop(CauseFiltered)
	assert.Equal(t, CauseNotIP, p.Metadata.Done)
}

func TestDeparseIPv4TTLRecomputesChecksum(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")
	raw := buildEthIPv4UDP(t, src, dst, 1, 2, nil)
	buf := WrapBuffer(raw, 0)
	p := Parse(buf, 1)
	require.False(t, p.IsDone())

	p.Headers.IPv4.TTL = 63
	require.NoError(t, p.DeparseIPv4TTL())

	reparsed, cause := ParseHeaders(buf.Bytes())
	require.Equal(t, CauseNone, cause)
	assert.Equal(t, uint8(63), reparsed.IPv4.TTL)

	sum := uint32(0)
	hdrBytes := buf.Bytes()[0:ethernetHeaderLen]
	_ = hdrBytes
	ipStart := ethernetHeaderLen
	ipEnd := ipStart + ipv4MinHeaderLen
	sum = checksumAccumulate(sum, buf.Bytes()[ipStart:ipEnd])
	assert.Equal(t, uint16(0), checksumFinish(sum), "recomputed IPv4 header checksum must be self-consistent")
}

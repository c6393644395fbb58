// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

import (
	"encoding/binary"
	"fmt"
)

// DeparseIPv4TTL writes back an IPv4 header's TTL and recomputes the
// header checksum. It is the only field the forwarding stage mutates
// in place today (hop limit decrement); NAT rewrites addresses and
// ports through RewriteNATAddressesAndPorts instead, since those also
// touch the transport checksum.
func (p *Packet) DeparseIPv4TTL() error {
	h := p.Headers.IPv4
	if h == nil {
		return fmt.Errorf("packet: no IPv4 header to deparse")
	}
	raw := p.Buffer.Bytes()
	off := p.Headers.ipv4Offset
	if len(raw) < off+ipv4MinHeaderLen {
		return fmt.Errorf("packet: buffer too short for IPv4 header at offset %d", off)
	}
	raw[off+8] = h.TTL
	raw[off+10] = 0
	raw[off+11] = 0
	sum := IPv4HeaderChecksum(raw[off : off+int(h.HeaderLenBytes)])
	binary.BigEndian.PutUint16(raw[off+10:off+12], sum)
	h.Checksum = sum
	return nil
}

// DeparseIPv6HopLimit writes back an IPv6 header's hop limit. IPv6
// has no header checksum to recompute.
func (p *Packet) DeparseIPv6HopLimit() error {
	h := p.Headers.IPv6
	if h == nil {
		return fmt.Errorf("packet: no IPv6 header to deparse")
	}
	raw := p.Buffer.Bytes()
	off := p.Headers.ipv6Offset
	if len(raw) < off+ipv6HeaderLen {
		return fmt.Errorf("packet: buffer too short for IPv6 header at offset %d", off)
	}
	raw[off+7] = h.HopLimit
	return nil
}

// DeparseEthernet rewrites the outer Ethernet header's source and
// destination addresses in place. It is the egress stage's final
// step, run once the next hop's destination MAC has been resolved;
// Ethernet carries no checksum to recompute.
func (p *Packet) DeparseEthernet(dst, src Mac) error {
	h := p.Headers.Eth
	if h == nil {
		return fmt.Errorf("packet: no Ethernet header to deparse")
	}
	raw := p.Buffer.Bytes()
	if len(raw) < ethernetHeaderLen {
		return fmt.Errorf("packet: buffer too short for Ethernet header")
	}
	copy(raw[0:6], dst[:])
	copy(raw[6:12], src[:])
	h.Destination, h.Source = dst, src
	return nil
}

// RewriteNATAddressesAndPorts overwrites the network- and transport-
// layer source/destination fields in place and recomputes the
// affected checksums. It is used by the NAT/port-forward stage, which
// is the only stage permitted to change addresses and ports.
func (p *Packet) RewriteNATAddressesAndPorts(newSrcPort, newDstPort uint16) error {
	raw := p.Buffer.Bytes()
	switch {
	case p.Headers.IPv4 != nil:
		h := p.Headers.IPv4
		off := p.Headers.ipv4Offset
		s, d := h.Source.As4(), h.Destination.As4()
		copy(raw[off+12:off+16], s[:])
		copy(raw[off+16:off+20], d[:])
		raw[off+10], raw[off+11] = 0, 0
		sum := IPv4HeaderChecksum(raw[off : off+int(h.HeaderLenBytes)])
		binary.BigEndian.PutUint16(raw[off+10:off+12], sum)
		h.Checksum = sum
	case p.Headers.IPv6 != nil:
		h := p.Headers.IPv6
		off := p.Headers.ipv6Offset
		s, d := h.Source.As16(), h.Destination.As16()
		copy(raw[off+8:off+24], s[:])
		copy(raw[off+24:off+40], d[:])
	default:
		return fmt.Errorf("packet: no network-layer header to rewrite")
	}

	tOff := p.Headers.transportOffset
	switch {
	case p.Headers.TCP != nil:
		h := p.Headers.TCP
		h.SourcePort, h.DestinationPort = newSrcPort, newDstPort
		binary.BigEndian.PutUint16(raw[tOff:tOff+2], newSrcPort)
		binary.BigEndian.PutUint16(raw[tOff+2:tOff+4], newDstPort)
		raw[tOff+16], raw[tOff+17] = 0, 0
		src, _ := p.Headers.SourceIP()
		dst, _ := p.Headers.DestinationIP()
		sum := TCPChecksum(src, dst, raw[tOff:])
		binary.BigEndian.PutUint16(raw[tOff+16:tOff+18], sum)
		h.Checksum = sum
	case p.Headers.UDP != nil:
		h := p.Headers.UDP
		h.SourcePort, h.DestinationPort = newSrcPort, newDstPort
		binary.BigEndian.PutUint16(raw[tOff:tOff+2], newSrcPort)
		binary.BigEndian.PutUint16(raw[tOff+2:tOff+4], newDstPort)
		raw[tOff+6], raw[tOff+7] = 0, 0
		src, _ := p.Headers.SourceIP()
		dst, _ := p.Headers.DestinationIP()
		sum := UDPChecksum(src, dst, raw[tOff:])
		binary.BigEndian.PutUint16(raw[tOff+6:tOff+8], sum)
		h.Checksum = sum
	}
	return nil
}

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
)

// parseResult is the outcome of attempting to parse one more layer:
// either success (possibly stopping the stack, e.g. at an unknown
// EtherType), or a cause that should terminate the packet.
type parseResult struct {
	cause Cause // CauseNone if parsing should simply stop without failing the packet
}

// ParseHeaders walks the header stack of raw starting at the
// Ethernet frame, populating h as far as it can. It returns a Cause
// rather than an error: a frame that is not Ethernet, not IP, or has a
// truncated or malformed VLAN tag or IP header yields the terminal
// cause for it (which Parse records on the packet), while a truncated
// or unrecognized transport or extension header simply stops parsing
// with CauseNone, leaving later layers nil.
func ParseHeaders(raw []byte) (*Headers, Cause) {
	h := &Headers{}

	if len(raw) < ethernetHeaderLen {
		return h, CauseNotEthernet
	}
	eth := &EthernetHeader{}
	copy(eth.Destination[:], raw[0:6])
	copy(eth.Source[:], raw[6:12])
	eth.EtherType = EtherType(binary.BigEndian.Uint16(raw[12:14]))
	h.Eth = eth

	off := ethernetHeaderLen
	etherType := eth.EtherType

	for etherType == EtherTypeVLAN || etherType == EtherTypeQinQ {
		if len(h.VLANs) >= 2 {
			// more than two tags is not a shape this gateway supports
			return h, CauseMalformed
		}
		if len(raw) < off+vlanTagLen {
			return h, CauseMalformed
		}
		tci := binary.BigEndian.Uint16(raw[off : off+2])
		inner := EtherType(binary.BigEndian.Uint16(raw[off+2 : off+4]))
		tag := VLANTag{
			TPID:      etherType,
			PCP:       uint8(tci >> 13),
			DEI:       tci&0x1000 != 0,
			VID:       tci & 0x0fff,
			EtherType: inner,
		}
		h.VLANs = append(h.VLANs, tag)
		off += vlanTagLen
		etherType = inner
	}

	switch etherType {
	case EtherTypeIPv4:
		return parseIPv4(raw, off, h)
	case EtherTypeIPv6:
		return parseIPv6(raw, off, h)
	default:
		// Not an IP packet at all (ARP and similar): nothing further to
		// parse, and the packet terminates with CauseNotIP.
		return h, CauseNotIP
	}
}

func parseIPv4(raw []byte, off int, h *Headers) (*Headers, Cause) {
	if len(raw) < off+ipv4MinHeaderLen {
		return h, CauseMalformed
	}
	b := raw[off:]
	verIHL := b[0]
	if verIHL>>4 != 4 {
		return h, CauseMalformed
	}
	ihl := int(verIHL&0x0f) * 4
	if ihl < ipv4MinHeaderLen || len(raw) < off+ihl {
		return h, CauseMalformed
	}
	src, _ := netip.AddrFromSlice(b[12:16])
	dst, _ := netip.AddrFromSlice(b[16:20])
	hdr := &IPv4Header{
		IHL:            uint8(ihl),
		TOS:            b[1],
		TotalLen:       binary.BigEndian.Uint16(b[2:4]),
		ID:             binary.BigEndian.Uint16(b[4:6]),
		FlagsFragOff:   binary.BigEndian.Uint16(b[6:8]),
		TTL:            b[8],
		Protocol:       IPProto(b[9]),
		Checksum:       binary.BigEndian.Uint16(b[10:12]),
		Source:         src.Unmap(),
		Destination:    dst.Unmap(),
		HeaderLenBytes: ihl,
	}
	h.IPv4 = hdr
	h.ipv4Offset = off

	proto := hdr.Protocol
	transportOff := off + ihl
	if proto == ProtoAH {
		hdr.HasAuthHeader = true
		next, newOff, ok := skipAH(raw, transportOff)
		if !ok {
			return h, CauseNone
		}
		proto, transportOff = next, newOff
	}
	return parseTransport(raw, transportOff, proto, h)
}

func parseIPv6(raw []byte, off int, h *Headers) (*Headers, Cause) {
	if len(raw) < off+ipv6HeaderLen {
		return h, CauseMalformed
	}
	b := raw[off:]
	if b[0]>>4 != 6 {
		return h, CauseMalformed
	}
	src, _ := netip.AddrFromSlice(b[8:24])
	dst, _ := netip.AddrFromSlice(b[24:40])
	hdr := &IPv6Header{
		TrafficClass: (b[0]<<4 | b[1]>>4) & 0xff,
		FlowLabel:    binary.BigEndian.Uint32(b[0:4]) & 0x000fffff,
		PayloadLen:   binary.BigEndian.Uint16(b[4:6]),
		NextHeader:   IPProto(b[6]),
		HopLimit:     b[7],
		Source:       src,
		Destination:  dst,
	}
	h.IPv6 = hdr
	h.ipv6Offset = off

	proto := hdr.NextHeader
	transportOff := off + ipv6HeaderLen
	for isIPv6ExtensionHeader(proto) {
		hdr.HasExtensionHdrs = true
		next, newOff, ok := skipIPv6ExtensionHeader(raw, transportOff, proto)
		if !ok {
			return h, CauseNone
		}
		proto, transportOff = next, newOff
	}
	hdr.UpperLayerOffset = transportOff
	return parseTransport(raw, transportOff, proto, h)
}

// isIPv6ExtensionHeader reports whether proto is one of the common
// IPv6 extension headers this gateway knows how to skip over. AH is
// included since, like IPv4, it may precede the upper-layer header.
func isIPv6ExtensionHeader(proto IPProto) bool {
	switch proto {
	case 0, 43, 44, 50, 60:
		return true
	case ProtoAH:
		return true
	default:
		return false
	}
}

// skipIPv6ExtensionHeader skips one extension header with the
// standard next-header/length-in-8-octet-units layout used by hop-by-
// hop, destination options, routing and fragment headers.
func skipIPv6ExtensionHeader(raw []byte, off int, proto IPProto) (IPProto, int, bool) {
	if proto == ProtoAH {
		return skipAH(raw, off)
	}
	if len(raw) < off+8 {
		return 0, 0, false
	}
	next := IPProto(raw[off])
	hdrLen := (int(raw[off+1]) + 1) * 8
	if len(raw) < off+hdrLen {
		return 0, 0, false
	}
	return next, off + hdrLen, true
}

// skipAH skips an IPsec Authentication Header, whose length field is
// the only irregular one (4-octet units, minus 2).
func skipAH(raw []byte, off int) (IPProto, int, bool) {
	if len(raw) < off+8 {
		return 0, 0, false
	}
	next := IPProto(raw[off])
	payloadLen := int(raw[off+1])
	hdrLen := (payloadLen + 2) * 4
	if len(raw) < off+hdrLen {
		return 0, 0, false
	}
	return next, off + hdrLen, true
}

func parseTransport(raw []byte, off int, proto IPProto, h *Headers) (*Headers, Cause) {
	h.transportOffset = off
	switch proto {
	case ProtoTCP:
		if len(raw) < off+tcpMinHeaderLen {
			return h, CauseNone
		}
		b := raw[off:]
		h.TCP = &TCPHeader{
			SourcePort:      binary.BigEndian.Uint16(b[0:2]),
			DestinationPort: binary.BigEndian.Uint16(b[2:4]),
			Seq:             binary.BigEndian.Uint32(b[4:8]),
			Ack:             binary.BigEndian.Uint32(b[8:12]),
			DataOffset:      b[12] >> 4,
			Flags:           TCPFlags(b[13]),
			Window:          binary.BigEndian.Uint16(b[14:16]),
			Checksum:        binary.BigEndian.Uint16(b[16:18]),
		}
	case ProtoUDP:
		if len(raw) < off+udpHeaderLen {
			return h, CauseNone
		}
		b := raw[off:]
		h.UDP = &UDPHeader{
			SourcePort:      binary.BigEndian.Uint16(b[0:2]),
			DestinationPort: binary.BigEndian.Uint16(b[2:4]),
			Length:          binary.BigEndian.Uint16(b[4:6]),
			Checksum:        binary.BigEndian.Uint16(b[6:8]),
		}
	case ProtoICMPv4:
		if len(raw) < off+icmpHeaderLen {
			return h, CauseNone
		}
		b := raw[off:]
		h.ICMPv4 = &ICMPv4Header{
			Type: b[0],
			Code: b[1],
			ID:   binary.BigEndian.Uint16(b[4:6]),
			Seq:  binary.BigEndian.Uint16(b[6:8]),
		}
	case ProtoICMPv6:
		if len(raw) < off+icmpHeaderLen {
			return h, CauseNone
		}
		b := raw[off:]
		h.ICMPv6 = &ICMPv6Header{
			Type: b[0],
			Code: b[1],
			ID:   binary.BigEndian.Uint16(b[4:6]),
			Seq:  binary.BigEndian.Uint16(b[6:8]),
		}
	}
	return h, CauseNone
}

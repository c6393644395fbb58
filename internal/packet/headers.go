// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

import (
	"fmt"
	"net/netip"
)

// Mac is an IEEE 802 48-bit MAC address.
type Mac [6]byte

func (m Mac) IsBroadcast() bool {
	for _, b := range m {
		if b != 0xff {
			return false
		}
	}
	return true
}

// IsMulticast reports whether the I/G bit is set.
func (m Mac) IsMulticast() bool { return m[0]&0x01 != 0 }

func (m Mac) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EtherType is the Ethernet payload type / TPID field.
type EtherType uint16

const (
	EtherTypeIPv4     EtherType = 0x0800
	EtherTypeARP      EtherType = 0x0806
	EtherTypeVLAN     EtherType = 0x8100
	EtherTypeQinQ     EtherType = 0x88a8
	EtherTypeIPv6     EtherType = 0x86dd
	EtherTypeMPLSUcst EtherType = 0x8847
)

// EthernetHeader is the outermost Layer 2 header. EtherType is the
// type of the first header that follows (a VLAN tag, if present, or
// the network-layer protocol).
type EthernetHeader struct {
	Destination Mac
	Source      Mac
	EtherType   EtherType
}

const ethernetHeaderLen = 14

// VLANTag is one 802.1Q/802.1ad tag. Up to two may be stacked
// (service + customer tag, "QinQ").
type VLANTag struct {
	TPID EtherType
	VID  uint16
	PCP  uint8
	DEI  bool
	// EtherType is the type of the header that follows this tag (the
	// next VLAN tag, or the network-layer protocol).
	EtherType EtherType
}

const vlanTagLen = 4

// IPProto is an IPv4 protocol / IPv6 next-header value.
type IPProto uint8

const (
	ProtoICMPv4 IPProto = 1
	ProtoTCP    IPProto = 6
	ProtoUDP    IPProto = 17
	ProtoAH     IPProto = 51
	ProtoICMPv6 IPProto = 58
)

// IPv4Header is a parsed (and, for mutation purposes, writable) IPv4
// header. HasAuthHeader records whether an IPsec AH header follows,
// per spec.md's "optional IPv4 ... possibly behind an Authentication
// Header".
type IPv4Header struct {
	IHL            uint8
	TOS            uint8
	TotalLen       uint16
	ID             uint16
	FlagsFragOff   uint16
	TTL            uint8
	Protocol       IPProto
	Checksum       uint16
	Source         netip.Addr
	Destination    netip.Addr
	HasAuthHeader  bool
	HeaderLenBytes int
}

// IPv6Header is a parsed IPv6 header. HasExtensionHeaders records
// whether one or more extension headers were skipped before arriving
// at the upper-layer protocol (or giving up).
type IPv6Header struct {
	TrafficClass      uint8
	FlowLabel         uint32
	PayloadLen        uint16
	NextHeader        IPProto
	HopLimit          uint8
	Source            netip.Addr
	Destination       netip.Addr
	HasExtensionHdrs  bool
	UpperLayerOffset  int
}

const ipv4MinHeaderLen = 20
const ipv6HeaderLen = 40

// TCPFlags holds the control bits of a TCP segment.
type TCPFlags uint8

const (
	TCPFlagFIN TCPFlags = 1 << 0
	TCPFlagSYN TCPFlags = 1 << 1
	TCPFlagRST TCPFlags = 1 << 2
	TCPFlagPSH TCPFlags = 1 << 3
	TCPFlagACK TCPFlags = 1 << 4
	TCPFlagURG TCPFlags = 1 << 5
)

func (f TCPFlags) Has(mask TCPFlags) bool { return f&mask == mask }

// TCPHeader is a parsed TCP header (options are not decoded; only the
// fixed 20-byte prefix the pipeline needs).
type TCPHeader struct {
	SourcePort      uint16
	DestinationPort uint16
	Seq             uint32
	Ack             uint32
	DataOffset      uint8
	Flags           TCPFlags
	Window          uint16
	Checksum        uint16
}

const tcpMinHeaderLen = 20

// UDPHeader is a parsed UDP header.
type UDPHeader struct {
	SourcePort      uint16
	DestinationPort uint16
	Length          uint16
	Checksum        uint16
}

const udpHeaderLen = 8

// ICMPv4Header is the fixed prefix of an ICMPv4 message, enough to
// recover an echo identifier for flow keying.
type ICMPv4Header struct {
	Type uint8
	Code uint8
	ID   uint16
	Seq  uint16
}

// ICMPv6Header mirrors ICMPv4Header for ICMPv6.
type ICMPv6Header struct {
	Type uint8
	Code uint8
	ID   uint16
	Seq  uint16
}

const icmpHeaderLen = 8

// Headers is the record of lazily parsed, optional protocol layers
// for one packet. A nil field means that layer is absent, either
// because the packet genuinely lacks it or because parsing stopped
// at an earlier layer.
type Headers struct {
	Eth    *EthernetHeader
	VLANs  []VLANTag
	IPv4   *IPv4Header
	IPv6   *IPv6Header
	TCP    *TCPHeader
	UDP    *UDPHeader
	ICMPv4 *ICMPv4Header
	ICMPv6 *ICMPv6Header

	// ipv4Offset/ipv6Offset/transportOffset record where within the buffer
	// the respective header begins, so Deparse can write modified
	// fields back in place.
	ipv4Offset     int
	ipv6Offset     int
	transportOffset int
}

// SourceIP returns the network-layer source address, if any.
func (h *Headers) SourceIP() (netip.Addr, bool) {
	switch {
	case h.IPv4 != nil:
		return h.IPv4.Source, true
	case h.IPv6 != nil:
		return h.IPv6.Source, true
	default:
		return netip.Addr{}, false
	}
}

// DestinationIP returns the network-layer destination address, if any.
func (h *Headers) DestinationIP() (netip.Addr, bool) {
	switch {
	case h.IPv4 != nil:
		return h.IPv4.Destination, true
	case h.IPv6 != nil:
		return h.IPv6.Destination, true
	default:
		return netip.Addr{}, false
	}
}

// Protocol returns the transport protocol carried by the network
// layer, if any.
func (h *Headers) Protocol() (IPProto, bool) {
	switch {
	case h.IPv4 != nil:
		return h.IPv4.Protocol, true
	case h.IPv6 != nil:
		return h.IPv6.NextHeader, true
	default:
		return 0, false
	}
}

// SourcePort returns the transport-layer source port, if the
// transport protocol has one.
func (h *Headers) SourcePort() (uint16, bool) {
	switch {
	case h.TCP != nil:
		return h.TCP.SourcePort, true
	case h.UDP != nil:
		return h.UDP.SourcePort, true
	default:
		return 0, false
	}
}

// DestinationPort returns the transport-layer destination port.
func (h *Headers) DestinationPort() (uint16, bool) {
	switch {
	case h.TCP != nil:
		return h.TCP.DestinationPort, true
	case h.UDP != nil:
		return h.UDP.DestinationPort, true
	default:
		return 0, false
	}
}

// ICMPID returns the ICMP echo identifier, used in place of a port
// pair for ICMP flow keys.
func (h *Headers) ICMPID() (uint16, bool) {
	switch {
	case h.ICMPv4 != nil:
		return h.ICMPv4.ID, true
	case h.ICMPv6 != nil:
		return h.ICMPv6.ID, true
	default:
		return 0, false
	}
}

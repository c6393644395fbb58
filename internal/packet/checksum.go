// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

import "net/netip"

// checksumAccumulate folds data into a running ones-complement sum.
// Callers finish with checksumFinish.
func checksumAccumulate(sum uint32, data []byte) uint32 {
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	return sum
}

func checksumFinish(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// ipv4PseudoHeaderSum accumulates the IPv4 pseudo-header used by TCP
// and UDP checksums.
func ipv4PseudoHeaderSum(src, dst netip.Addr, proto IPProto, length int) uint32 {
	s, d := src.As4(), dst.As4()
	sum := checksumAccumulate(0, s[:])
	sum = checksumAccumulate(sum, d[:])
	sum += uint32(proto)
	sum += uint32(length)
	return sum
}

// ipv6PseudoHeaderSum accumulates the IPv6 pseudo-header.
func ipv6PseudoHeaderSum(src, dst netip.Addr, proto IPProto, length int) uint32 {
	s, d := src.As16(), dst.As16()
	sum := checksumAccumulate(0, s[:])
	sum = checksumAccumulate(sum, d[:])
	sum += uint32(proto)
	sum += uint32(length)
	return sum
}

// IPv4HeaderChecksum computes the header checksum over raw, the bytes
// of an IPv4 header with the checksum field itself zeroed by the
// caller before calling.
func IPv4HeaderChecksum(raw []byte) uint16 {
	return checksumFinish(checksumAccumulate(0, raw))
}

// TCPChecksum computes the TCP checksum over the pseudo-header, the
// TCP header and its payload. segment must have its checksum field
// zeroed already.
func TCPChecksum(src, dst netip.Addr, segment []byte) uint16 {
	sum := ipv4PseudoHeaderSumFor(src, dst, ProtoTCP, len(segment))
	sum = checksumAccumulate(sum, segment)
	return checksumFinish(sum)
}

// UDPChecksum computes the UDP checksum over the pseudo-header, the
// UDP header and its payload.
func UDPChecksum(src, dst netip.Addr, datagram []byte) uint16 {
	sum := ipv4PseudoHeaderSumFor(src, dst, ProtoUDP, len(datagram))
	sum = checksumAccumulate(sum, datagram)
	return checksumFinish(sum)
}

func ipv4PseudoHeaderSumFor(src, dst netip.Addr, proto IPProto, length int) uint32 {
	if src.Is4() && dst.Is4() {
		return ipv4PseudoHeaderSum(src, dst, proto, length)
	}
	return ipv6PseudoHeaderSum(src, dst, proto, length)
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package pipeline

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/fabricgate/gwcore/internal/fib"
	"github.com/fabricgate/gwcore/internal/hashing"
	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/rib"
	"github.com/fabricgate/gwcore/internal/rmac"
)

const (
	outerEthLen  = 14
	outerIPv4Len = 20
	outerUDPLen  = 8
	vxlanHdrLen  = 8
	vxlanEncapLen = outerEthLen + outerIPv4Len + outerUDPLen + vxlanHdrLen

	etherTypeIPv4  = 0x0800
	vxlanUDPPort   = 4789
	vxlanFlagsIVAL = 0x08000000 // I flag set, VNI valid
	defaultTTL     = 64
)

// pushEncap prepends the outer Ethernet/IPv4/UDP/VXLAN header for a
// VXLAN encapsulation instruction into the buffer's headroom, per
// spec.md §4.8 step 4. The inner destination MAC the original frame
// already carries is left untouched; only an outer frame is added in
// front of it.
func (s *IPForward) pushEncap(instr fib.Instruction, vtepIfIndex *uint32, rmacs *rmac.Table, ifaces *iftable.Table, p *packet.Packet) error {
	if instr.Encap == nil || instr.Encap.Kind != rib.EncapVXLAN {
		return fmt.Errorf("pipeline: encap instruction without a VXLAN encapsulation")
	}
	if vtepIfIndex == nil {
		return fmt.Errorf("pipeline: encap instruction without a resolved egress interface")
	}
	localIface, ok := ifaces.Get(*vtepIfIndex)
	if !ok {
		return fmt.Errorf("pipeline: unknown VTEP interface %d", *vtepIfIndex)
	}
	localVTEP, ok := localUnicastIPv4(localIface)
	if !ok {
		return fmt.Errorf("pipeline: VTEP interface %d has no local IPv4 address", *vtepIfIndex)
	}

	innerMAC, ok := rmacs.Get(rmac.Key{RemoteVTEP: instr.Encap.RemoteVTEP, VNI: instr.Encap.VNI})
	if !ok {
		// Projection already flagged the owning FibGroup Incomplete;
		// the packet is dropped here with InvalidDstMac, so the egress
		// stage never sees it.
		p.Drop(packet.CauseInvalidDstMac)
		return nil
	}

	payload := p.Buffer.Bytes()
	buf, err := p.Buffer.Prepend(vxlanEncapLen)
	if err != nil {
		return err
	}

	// Outer Ethernet: destination is the remote VTEP's router MAC and
	// source is the VTEP interface's own MAC; the egress stage later
	// rewrites both with the resolved next hop's MAC and the egress
	// interface's MAC.
	copy(buf[0:6], innerMAC[:])
	copy(buf[6:12], localIface.MAC[:])
	binary.BigEndian.PutUint16(buf[12:14], etherTypeIPv4)

	outerIPOff := outerEthLen
	srcV4 := localVTEP.As4()
	dstV4 := instr.Encap.RemoteVTEP.As4()
	buf[outerIPOff] = 0x45 // version 4, IHL 5
	buf[outerIPOff+1] = 0
	binary.BigEndian.PutUint16(buf[outerIPOff+2:outerIPOff+4], uint16(vxlanEncapLen-outerEthLen+len(payload)))
	binary.BigEndian.PutUint16(buf[outerIPOff+4:outerIPOff+6], 0) // ID
	binary.BigEndian.PutUint16(buf[outerIPOff+6:outerIPOff+8], 0) // flags/frag
	buf[outerIPOff+8] = defaultTTL
	buf[outerIPOff+9] = byte(packet.ProtoUDP)
	binary.BigEndian.PutUint16(buf[outerIPOff+10:outerIPOff+12], 0) // checksum placeholder
	copy(buf[outerIPOff+12:outerIPOff+16], srcV4[:])
	copy(buf[outerIPOff+16:outerIPOff+20], dstV4[:])
	sum := packet.IPv4HeaderChecksum(buf[outerIPOff : outerIPOff+outerIPv4Len])
	binary.BigEndian.PutUint16(buf[outerIPOff+10:outerIPOff+12], sum)

	outerUDPOff := outerIPOff + outerIPv4Len
	srcPort := hashing.VXLANSourcePort(p.Headers)
	binary.BigEndian.PutUint16(buf[outerUDPOff:outerUDPOff+2], srcPort)
	binary.BigEndian.PutUint16(buf[outerUDPOff+2:outerUDPOff+4], vxlanUDPPort)
	binary.BigEndian.PutUint16(buf[outerUDPOff+4:outerUDPOff+6], uint16(outerUDPLen+vxlanHdrLen+len(payload)))
	binary.BigEndian.PutUint16(buf[outerUDPOff+6:outerUDPOff+8], 0) // outer UDP checksum is optional over IPv4

	vxlanOff := outerUDPOff + outerUDPLen
	binary.BigEndian.PutUint32(buf[vxlanOff:vxlanOff+4], vxlanFlagsIVAL)
	binary.BigEndian.PutUint32(buf[vxlanOff+4:vxlanOff+8], instr.Encap.VNI<<8)

	p.Metadata.Flags |= packet.FlagNeedsChecksumRefresh
	return nil
}

func localUnicastIPv4(iface *iftable.Interface) (netip.Addr, bool) {
	for _, a := range iface.Addresses {
		if a.Addr().Is4() && !a.Addr().IsMulticast() {
			return a.Addr(), true
		}
	}
	return netip.Addr{}, false
}

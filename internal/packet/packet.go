// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

// Packet bundles the mutable wire buffer, the lazily parsed header
// stack, and the per-packet metadata record that stages thread
// through the pipeline. A batch processed by one worker lane is a
// []*Packet; see internal/pipeline.
type Packet struct {
	Buffer   *Buffer
	Headers  *Headers
	Metadata Metadata
}

// Parse builds a Packet from a wire buffer and ingress interface
// index, walking the header stack as far as it will go. Parse never
// fails outright: a buffer that isn't Ethernet or IP, or whose VLAN or
// IP header is truncated or malformed, yields a Packet whose
// Metadata.Done already records the terminal cause, so the ingress
// stage can count and drop it without further inspection.
func Parse(buf *Buffer, ingressIfIndex uint32) *Packet {
	h, cause := ParseHeaders(buf.Bytes())
	p := &Packet{
		Buffer:  buf,
		Headers: h,
		Metadata: Metadata{
			IngressIfIndex: ingressIfIndex,
		},
	}
	if cause != CauseNone {
		p.Metadata.SetDone(cause)
	}
	return p
}

// Drop terminates the packet with the given cause if it is not
// already terminated. Stages call this instead of writing
// Metadata.Done directly so the sticky-cause invariant always holds.
func (p *Packet) Drop(cause Cause) {
	p.Metadata.SetDone(cause)
}

// IsDone reports whether a prior stage has already terminated this
// packet.
func (p *Packet) IsDone() bool {
	return p.Metadata.IsDone()
}

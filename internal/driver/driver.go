// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package driver defines the burst source/sink contract a worker lane
// drains and drives each iteration. spec.md §6 describes the driver
// as exposing a receive queue of mutable buffers and a transmit queue
// that must accept everything submitted to it; this package narrows
// that to buffers the driver has already associated with their
// ingress interface, since that is what internal/packet.Parse needs
// to build a Packet. A real driver implementation (AF_PACKET, DPDK,
// a tap device) lives outside this module; memdriver is the in-memory
// test double used by this module's own tests.
package driver

import "github.com/fabricgate/gwcore/internal/packet"

// MinHeadroom is the smallest headroom, in bytes, a driver must leave
// in front of every buffer's payload, per spec.md §6: enough for the
// worst-case outer encapsulation the pipeline can push (VXLAN over
// IPv4: 14 + 20 + 8 + 8 = 50 bytes), rounded up with margin for a
// future MPLS or IPv6 underlay.
const MinHeadroom = 128

// Source is a worker lane's receive queue. Receive drains up to max
// packets and must never block; an empty receive queue returns a nil
// or zero-length slice rather than waiting.
type Source interface {
	Receive(max int) []*packet.Packet
}

// Sink is a worker lane's transmit queue. Transmit must accept every
// packet in batch, including ones a pipeline stage already marked
// done; backpressure is the driver's own responsibility, not the
// worker's.
type Sink interface {
	Transmit(batch []*packet.Packet)
}

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package memdriver is an in-memory driver.Source/driver.Sink pair
// backed by plain slices, used by this module's own tests and as a
// worked example of the driver contract.
package memdriver

import (
	"sync"

	"github.com/fabricgate/gwcore/internal/packet"
)

// Driver is a single worker lane's receive and transmit queues, both
// guarded by one mutex since nothing here is performance-sensitive.
type Driver struct {
	mu         sync.Mutex
	pending    []*packet.Packet
	delivered  []*packet.Packet
	transmits  int
}

// New returns an empty Driver.
func New() *Driver {
	return &Driver{}
}

// Enqueue appends packets to the receive queue, as if they had just
// arrived on the wire.
func (d *Driver) Enqueue(pkts ...*packet.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, pkts...)
}

// Receive implements driver.Source.
func (d *Driver) Receive(max int) []*packet.Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil
	}
	n := max
	if n > len(d.pending) {
		n = len(d.pending)
	}
	batch := d.pending[:n]
	d.pending = d.pending[n:]
	return batch
}

// Transmit implements driver.Sink. Every packet handed to it,
// delivered or dropped, is recorded for inspection.
func (d *Driver) Transmit(batch []*packet.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, batch...)
	d.transmits++
}

// Delivered returns every packet ever handed to Transmit, in order.
func (d *Driver) Delivered() []*packet.Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*packet.Packet, len(d.delivered))
	copy(out, d.delivered)
	return out
}

// Pending reports how many packets are still waiting to be received.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Transmits reports how many times Transmit has been called, so
// tests can assert on burst boundaries.
func (d *Driver) Transmits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transmits
}

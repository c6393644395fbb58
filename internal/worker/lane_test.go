// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package worker

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgate/gwcore/internal/driver/memdriver"
	"github.com/fabricgate/gwcore/internal/flowtable"
	"github.com/fabricgate/gwcore/internal/packet"
	"github.com/fabricgate/gwcore/internal/pipeline"
)

// markDone is a trivial pipeline.Stage that terminates every packet
// it sees, standing in for the real forwarding chain.
type markDone struct {
	calls int
	seen  int
}

func (s *markDone) Process(batch []*packet.Packet) {
	s.calls++
	s.seen += len(batch)
	for _, p := range batch {
		p.Drop(packet.CauseDelivered)
	}
}

func newTestPacket() *packet.Packet {
	return &packet.Packet{Headers: &packet.Headers{}}
}

func TestLaneTickDrainsBatchRunsPipelineAndTransmits(t *testing.T) {
	drv := memdriver.New()
	drv.Enqueue(newTestPacket(), newTestPacket(), newTestPacket())

	stage := &markDone{}
	lane := NewLane(0, drv, drv, pipeline.New(stage), nil, nil)

	lane.tick()

	assert.Equal(t, 1, stage.calls)
	assert.Equal(t, 3, stage.seen)
	assert.Equal(t, 0, drv.Pending())
	assert.Equal(t, 1, drv.Transmits())
	assert.Len(t, drv.Delivered(), 3)
}

func TestLaneTickRespectsBurstMax(t *testing.T) {
	drv := memdriver.New()
	for i := 0; i < 5; i++ {
		drv.Enqueue(newTestPacket())
	}

	stage := &markDone{}
	lane := NewLane(0, drv, drv, pipeline.New(stage), nil, nil)
	lane.BurstMax = 2

	lane.tick()
	assert.Equal(t, 2, stage.seen)
	assert.Equal(t, 3, drv.Pending())

	lane.tick()
	assert.Equal(t, 4, stage.seen)
	assert.Equal(t, 1, drv.Pending())
}

func TestLaneTickWithEmptyQueueSkipsPipelineAndTransmit(t *testing.T) {
	drv := memdriver.New()
	stage := &markDone{}
	lane := NewLane(0, drv, drv, pipeline.New(stage), nil, nil)

	lane.tick()

	assert.Equal(t, 0, stage.calls)
	assert.Equal(t, 0, drv.Transmits())
}

func TestLaneExpiresFlowsOnceIntervalElapses(t *testing.T) {
	flows := flowtable.New()
	vpc := packet.VPCDiscriminant{VNI: 1}
	headers := &packet.Headers{
		IPv4: &packet.IPv4Header{
			Protocol:    packet.ProtoUDP,
			Source:      netip.MustParseAddr("10.0.0.1"),
			Destination: netip.MustParseAddr("10.0.0.2"),
		},
		UDP: &packet.UDPHeader{SourcePort: 1, DestinationPort: 2},
	}
	key, ok := flowtable.NewKey(vpc, nil, headers)
	require.True(t, ok)

	base := time.Unix(1_700_000_000, 0)
	flows.Insert(key, flowtable.NewInfo(flowtable.StatusActive, base.Add(-time.Second), nil, nil))

	drv := memdriver.New()
	lane := NewLane(0, drv, drv, pipeline.New(&markDone{}), flows, nil)
	lane.ExpireInterval = 10 * time.Millisecond

	clock := base
	lane.now = func() time.Time { return clock }

	// First tick only establishes the expiry baseline; the entry, even
	// though its expires-at has already passed, is not swept until an
	// interval has elapsed.
	lane.tick()
	_, ok = flows.Lookup(key)
	assert.True(t, ok)

	clock = clock.Add(20 * time.Millisecond)
	lane.tick()

	_, ok = flows.Lookup(key)
	assert.False(t, ok)
}

func TestLaneWithNilFlowsNeverExpires(t *testing.T) {
	drv := memdriver.New()
	lane := NewLane(0, drv, drv, pipeline.New(&markDone{}), nil, nil)
	// Must not panic with a nil flow table.
	lane.tick()
	lane.tick()
}

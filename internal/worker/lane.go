// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package worker implements the per-lane cooperative executor (C12)
// spec.md §4.9 and §5 describe: one goroutine, pinned with
// runtime.LockOSThread to approximate a pinned worker thread, that
// drains a burst from its driver.Source, runs it through a fixed
// pipeline.Pipeline, hands the result to its driver.Sink, and
// services one flow-expiration tick when due. Lanes share the
// published tables with every other lane and the writer, and share
// one flow table whose shards serialize their own writers; nothing in
// this package itself is synchronized across lanes.
package worker

import (
	"runtime"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fabricgate/gwcore/internal/driver"
	"github.com/fabricgate/gwcore/internal/flowtable"
	"github.com/fabricgate/gwcore/internal/pipeline"
)

// DefaultBurstMax bounds how many packets one iteration drains from
// the receive queue. spec.md §4.9 names the quantity BURST_MAX but
// leaves its value to the implementation; 64 keeps one burst's worth
// of packets comfortably within an L1-sized working set.
const DefaultBurstMax = 64

// DefaultExpireInterval is how often a lane services a flow-table
// expiration sweep. Flow expiry is cooperative and, per spec.md §5,
// "tolerates milliseconds of skew" -- running the sweep on a fixed
// wall-clock cadence rather than every idle iteration keeps it off
// the hot path while staying well inside that tolerance.
const DefaultExpireInterval = 50 * time.Millisecond

// idleSleep is the bounded microsleep a lane takes when its receive
// queue comes back empty, so it yields the core instead of spinning
// pure busy-work, without ever blocking on a synchronization
// primitive the writer could hold.
const idleSleep = 200 * time.Microsecond

// Lane is one worker lane: a fixed pipeline wired to one driver and
// to the flow table, which all lanes share; no shard belongs to a
// particular lane, and each lane's expiration sweep covers the whole
// table.
type Lane struct {
	ID       int
	Source   driver.Source
	Sink     driver.Sink
	Pipeline *pipeline.Pipeline
	Flows    *flowtable.Table
	Logger   log.Logger

	BurstMax       int
	ExpireInterval time.Duration

	now         func() time.Time
	lastExpire  time.Time
	initialized bool
}

// NewLane returns a Lane ready to Run. flows may be nil for a lane
// that never expires flows (not expected in production,
// but convenient in tests that only exercise stateless stages).
func NewLane(id int, source driver.Source, sink driver.Sink, pl *pipeline.Pipeline, flows *flowtable.Table, logger log.Logger) *Lane {
	return &Lane{
		ID:             id,
		Source:         source,
		Sink:           sink,
		Pipeline:       pl,
		Flows:          flows,
		Logger:         logger,
		BurstMax:       DefaultBurstMax,
		ExpireInterval: DefaultExpireInterval,
		now:            time.Now,
	}
}

// Run pins the calling goroutine to its OS thread and loops until
// stop is closed. It is meant to be the entire body of a goroutine
// dedicated to this lane; Run never returns on its own.
func (l *Lane) Run(stop <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if l.Logger != nil {
		l.Logger.Log("op", "laneStart", "lane", l.ID, "msg", "worker lane starting")
	}

	for {
		select {
		case <-stop:
			if l.Logger != nil {
				l.Logger.Log("op", "laneStop", "lane", l.ID, "msg", "worker lane stopping")
			}
			return
		default:
		}
		l.tick()
	}
}

// tick runs exactly one iteration of the lane's loop: drain, process,
// transmit, and (when due) expire. It is exported-shaped as a method
// so tests can drive single iterations deterministically instead of
// racing a goroutine against a stop channel.
func (l *Lane) tick() {
	batch := l.Source.Receive(l.burstMax())
	if len(batch) > 0 {
		l.Pipeline.Run(batch)
		l.Sink.Transmit(batch)
	}
	l.maybeExpire()
	if len(batch) == 0 {
		time.Sleep(idleSleep)
	}
}

func (l *Lane) burstMax() int {
	if l.BurstMax <= 0 {
		return DefaultBurstMax
	}
	return l.BurstMax
}

func (l *Lane) maybeExpire() {
	if l.Flows == nil {
		return
	}
	interval := l.ExpireInterval
	if interval <= 0 {
		interval = DefaultExpireInterval
	}
	clock := l.now
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	if !l.initialized {
		l.initialized = true
		l.lastExpire = now
		return
	}
	if now.Sub(l.lastExpire) < interval {
		return
	}
	l.lastExpire = now
	l.Flows.ExpireDue(now)
}

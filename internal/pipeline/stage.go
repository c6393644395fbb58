// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package pipeline implements the fixed chain of forwarding stages
// spec.md §4.8 names: ingress, flow lookup, flow filter, IP
// forwarding, NAT/port-forward, egress. A worker lane runs the whole
// chain once per burst.
//
// The original dataplane models a stage as a `NetworkFunction` whose
// `process` method lazily maps one packet iterator to another,
// chained by a `DynPipeline`. Go has no zero-cost lazy iterator
// adaptor of that shape, and the worker runtime already receives and
// hands off whole bursts, so a Stage here operates in place on a
// batch slice instead of wrapping an iterator. Dropped packets are
// not removed from the slice — they stay in place with Metadata.Done
// set, exactly as the original's "done packets pass through
// untouched" rule requires; later stages skip them with an IsDone
// check, and the sink is the only place that accounts and releases
// them.
package pipeline

import "github.com/fabricgate/gwcore/internal/packet"

// Stage processes one burst of packets in place.
type Stage interface {
	Process(batch []*packet.Packet)
}

// Pipeline runs a fixed, ordered chain of stages once per burst.
type Pipeline struct {
	stages []Stage
}

// New builds a Pipeline running stages in the given order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes every stage over batch in order.
func (p *Pipeline) Run(batch []*packet.Packet) {
	for _, s := range p.stages {
		s.Process(batch)
	}
}

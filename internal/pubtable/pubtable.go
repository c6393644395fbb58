// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package pubtable implements the single-writer, many-reader
// published-table primitive every forwarding-state table (interfaces,
// adjacencies, router MACs, RIB/FIB, NAT rules) is built on. A single
// goroutine owns and mutates a working copy; Publish atomically swaps
// it in for readers, who never block and never observe a partially
// built table.
//
// There is no ecosystem library for this: it is a few words of
// sync/atomic, and every generic "concurrent map" package in the
// pack assumes the opposite shape (many writers). Building it on
// sync/atomic directly, rather than reaching for a dependency that
// doesn't fit, is the intended idiom.
package pubtable

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Published holds the current, immutable, published snapshot of a
// value of type T. The zero value is usable and starts with a nil
// snapshot.
type Published[T any] struct {
	current atomic.Pointer[T]
	epoch   atomic.Uint64
}

// Load returns the most recently published snapshot, or nil if
// nothing has been published yet. Load never blocks and is safe to
// call from any number of goroutines concurrently with Publish.
func (p *Published[T]) Load() *T {
	return p.current.Load()
}

// Publish installs snap as the new current snapshot, replacing
// whatever was published before. Callers must serialize their own
// calls to Publish (there is exactly one writer per table in this
// gateway); Publish itself does not arbitrate between concurrent
// writers.
func (p *Published[T]) Publish(snap *T) {
	p.current.Store(snap)
	p.epoch.Add(1)
}

// Epoch returns the number of snapshots published so far. Tests use
// this to check how many snapshots have been published; EpochTracker
// uses it to tag the snapshot each reader entered on.
func (p *Published[T]) Epoch() uint64 {
	return p.epoch.Load()
}

// readerRegistry tracks the oldest epoch any live reader might still
// observe. It records only epochs, so it is not generic;
// EpochTracker[T].Enter and Exit wrap it.
type readerRegistry struct {
	mu      sync.Mutex
	nextID  int
	epochOf map[int]uint64
}

func newReaderRegistry() *readerRegistry {
	return &readerRegistry{epochOf: make(map[int]uint64)}
}

// EpochTracker extends Published with explicit epoch bookkeeping for
// callers that pool and reuse the memory behind old snapshots (the
// FIB projector reuses next-hop arenas this way) instead of leaving
// reclamation to the garbage collector.
type EpochTracker[T any] struct {
	Published[T]
	reg *readerRegistry
}

// NewEpochTracker returns a ready-to-use EpochTracker.
func NewEpochTracker[T any]() *EpochTracker[T] {
	return &EpochTracker[T]{reg: newReaderRegistry()}
}

// ReadGuard is returned by Enter and must be released with Exit when
// the reader is done observing the snapshot it loaded.
type ReadGuard struct {
	id int
}

// Enter registers the calling reader as observing the table's current
// epoch and returns the snapshot together with a guard. The caller
// must call Exit(guard) when finished.
func (e *EpochTracker[T]) Enter() (*T, ReadGuard) {
	snap := e.Load()
	epoch := e.Epoch()

	e.reg.mu.Lock()
	id := e.reg.nextID
	e.reg.nextID++
	e.reg.epochOf[id] = epoch
	e.reg.mu.Unlock()

	return snap, ReadGuard{id: id}
}

// Exit releases a guard returned by Enter.
func (e *EpochTracker[T]) Exit(g ReadGuard) {
	e.reg.mu.Lock()
	delete(e.reg.epochOf, g.id)
	e.reg.mu.Unlock()
}

// Quiesce blocks until every reader that entered before the most
// recent Publish has called Exit, i.e. until no live reader can still
// be observing an epoch older than the current one. The writer calls
// this before reusing (rather than discarding) the memory behind a
// superseded snapshot.
func (e *EpochTracker[T]) Quiesce() {
	target := e.Epoch()
	for {
		e.reg.mu.Lock()
		stale := false
		for _, ep := range e.reg.epochOf {
			if ep < target {
				stale = true
				break
			}
		}
		e.reg.mu.Unlock()
		if !stale {
			return
		}
		// Readers hold their guard for the duration of one batch of
		// packets at most; a short yield is enough to avoid busy-waiting
		// the CPU the writer itself needs.
		runtime.Gosched()
	}
}

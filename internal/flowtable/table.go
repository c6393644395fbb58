// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package flowtable

import (
	"sync"
	"time"

	"github.com/fabricgate/gwcore/internal/hashing"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

// NumShards is fixed rather than derived from the worker count at
// construction time: spec.md §3 only requires shard count to be
// "sized to the worker count," and a fixed power-of-two upper bound
// keeps shard selection a single mask instead of a runtime-configured
// modulus recomputed on every lookup.
const NumShards = 64

type shard struct {
	published pubtable.Published[map[Key]*Info]

	mu      sync.Mutex // serializes mutation from any worker or the writer; readers never take it
	working map[Key]*Info
}

// Table is the concurrent flow index from spec.md §3: a wait-free-on-
// read hash index of canonical flow Key to a reference-counted Info,
// split into NumShards shards chosen by hashing.FlowKeyHash of the
// key. Shards are not owned by workers: any worker or the
// control-plane writer may mutate any shard, serialized by that
// shard's mutex. Each shard republishes its own immutable
// snapshot map through internal/pubtable rather than a generic
// concurrent map, matching the single-writer/many-reader shape every
// other published store in this module uses, instead of reaching for
// sync.Map.
type Table struct {
	shards [NumShards]*shard
}

// New returns an empty Table.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i] = &shard{working: map[Key]*Info{}}
	}
	return t
}

func (t *Table) shardFor(k Key) *shard {
	h := hashing.FlowKeyHash(k.SrcIP, k.DstIP, k.Proto, k.SrcPort, k.DstPort)
	return t.shards[h%NumShards]
}

// Lookup returns the flow info for k, if present. Wait-free on the
// read side: it only ever loads the shard's current published
// snapshot, never blocking behind a concurrent Insert or ExpireDue on
// that shard or any other.
func (t *Table) Lookup(k Key) (*Info, bool) {
	snap := t.shardFor(k).published.Load()
	if snap == nil {
		return nil, false
	}
	info, ok := (*snap)[k]
	return info, ok
}

func (s *shard) publishLocked() {
	snap := make(map[Key]*Info, len(s.working))
	for k, v := range s.working {
		snap[k] = v
	}
	s.published.Publish(&snap)
}

// Insert installs info under k, overwriting any existing entry, and
// publishes the shard's updated snapshot.
func (t *Table) Insert(k Key, info *Info) {
	s := t.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[k] = info
	s.publishLocked()
}

// InsertPair installs info under both the forward key and its
// reverse, so the symmetric reply direction hits the same Info
// without a second flow-table miss. Both keys reference the same
// Info value; NAT state on it is interpreted relative to the
// direction each stage is currently processing, not relative to
// which key resolved the lookup.
func (t *Table) InsertPair(forward Key, info *Info) {
	t.Insert(forward, info)
	t.Insert(forward.Reverse(), info)
}

// Delete removes k unconditionally and publishes the shard's updated
// snapshot.
func (t *Table) Delete(k Key) {
	s := t.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.working[k]; !ok {
		return
	}
	delete(s.working, k)
	s.publishLocked()
}

// ExpireDue sweeps every shard, deleting entries whose ExpiresAt is at
// or before now and whose external reference count is zero. Entries
// past expiry with a non-zero reference count are instead marked
// Closed and retained, per spec.md §3, so an in-flight consumer
// holding a reference never observes its Info vanish mid-use; they are
// deleted on a later sweep once the reference count drops back to
// zero. Info.SetStatus mutates the shared Info value in place (safe:
// Status is atomic), so a Closed transition needs no republish; only
// an actual deletion does.
func (t *Table) ExpireDue(now time.Time) {
	for _, s := range t.shards {
		s.mu.Lock()
		changed := false
		for k, info := range s.working {
			if info.ExpiresAt().After(now) {
				continue
			}
			if info.refs() > 0 {
				info.SetStatus(StatusClosed)
				continue
			}
			delete(s.working, k)
			changed = true
		}
		if changed {
			s.publishLocked()
		}
		s.mu.Unlock()
	}
}

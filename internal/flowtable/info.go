// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package flowtable

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/fabricgate/gwcore/internal/packet"
)

// Status is a flow's lifecycle state.
type Status uint32

const (
	StatusNew Status = iota
	StatusActive
	StatusClosed
)

// NATAction distinguishes source- from destination-NAT rewrite.
type NATAction uint8

const (
	NATActionSrcNat NATAction = iota
	NATActionDstNat
)

// NATState is the rewrite a NAT'd flow applies to matching packets.
// It is fixed at flow-entry install time.
type NATState struct {
	Action          NATAction
	ReplacementIP   netip.Addr
	ReplacementPort uint16
}

// Info is the per-flow record spec.md §3 describes. ExpiresAt and
// Status are accessed through atomics so the expiration sweep and the
// owning worker's per-packet refresh never need a lock.
type Info struct {
	status    atomic.Uint32
	expiresAt atomic.Int64 // UnixNano
	refCount  atomic.Int32

	NAT    *NATState
	DstVPC *packet.VPCDiscriminant
}

// NewInfo constructs an Info in the given status, expiring at
// expiresAt.
func NewInfo(status Status, expiresAt time.Time, nat *NATState, dstVPC *packet.VPCDiscriminant) *Info {
	i := &Info{NAT: nat, DstVPC: dstVPC}
	i.status.Store(uint32(status))
	i.expiresAt.Store(expiresAt.UnixNano())
	return i
}

// Status returns the current lifecycle state.
func (i *Info) Status() Status { return Status(i.status.Load()) }

// SetStatus updates the lifecycle state.
func (i *Info) SetStatus(s Status) { i.status.Store(uint32(s)) }

// ExpiresAt returns the current expiry instant.
func (i *Info) ExpiresAt() time.Time { return time.Unix(0, i.expiresAt.Load()) }

// Extend advances ExpiresAt to newExpiry, enforcing the monotonic
// invariant from spec.md §3 ("expires-at is monotonically
// non-decreasing while status is Active") by never moving it
// backwards.
func (i *Info) Extend(newExpiry time.Time) {
	n := newExpiry.UnixNano()
	for {
		cur := i.expiresAt.Load()
		if n <= cur {
			return
		}
		if i.expiresAt.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Retain increments the external reference count, delaying reclamation
// past expiry until a matching Release.
func (i *Info) Retain() { i.refCount.Add(1) }

// Release decrements the external reference count.
func (i *Info) Release() { i.refCount.Add(-1) }

func (i *Info) refs() int32 { return i.refCount.Load() }

// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package kifsrc

import (
	"net"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/pubtable"
)

func TestClassifyKindLoopback(t *testing.T) {
	link := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "lo"}}
	assert.Equal(t, iftable.KindLoopback, classifyKind(link))
}

func TestClassifyKindVXLAN(t *testing.T) {
	link := &netlink.Vxlan{LinkAttrs: netlink.LinkAttrs{Name: "vtep0"}}
	assert.Equal(t, iftable.KindVTEP, classifyKind(link))
}

func TestClassifyKindVLAN(t *testing.T) {
	link := &netlink.Vlan{LinkAttrs: netlink.LinkAttrs{Name: "eth0.100"}}
	assert.Equal(t, iftable.KindVLANSubInterface, classifyKind(link))
}

func TestClassifyKindDefaultEthernet(t *testing.T) {
	link := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "eth0"}}
	assert.Equal(t, iftable.KindEthernet, classifyKind(link))
}

func TestAdminStateFromFlags(t *testing.T) {
	assert.Equal(t, iftable.AdminUp, adminState(net.FlagUp))
	assert.Equal(t, iftable.AdminDown, adminState(net.Flags(0)))
}

func TestOperStateFromLinkState(t *testing.T) {
	assert.Equal(t, iftable.OperUp, operState(netlink.OperUp))
	assert.Equal(t, iftable.OperDown, operState(netlink.OperDown))
	assert.Equal(t, iftable.OperDown, operState(netlink.OperUnknown))
}

// TestSyncPopulatesLoopbackInterface is an integration test that
// requires actual netlink access; it relies on "lo" existing on every
// Linux host, the same assumption the teacher's election package
// tests make about TestGetLocalSubnets_LoopbackOnly.
func TestSyncPopulatesLoopbackInterface(t *testing.T) {
	pub := &pubtable.Published[iftable.Table]{}
	writer := iftable.NewWriter(pub)
	src := New(writer, log.NewNopLogger())

	require.NoError(t, src.Sync())

	loLink, err := netlink.LinkByName("lo")
	require.NoError(t, err, "loopback interface must exist on a Linux host")

	table := pub.Load()
	require.NotNil(t, table)
	iface, ok := table.Get(uint32(loLink.Attrs().Index))
	require.True(t, ok, "expected loopback interface in published table")
	assert.Equal(t, "lo", iface.Name)
	assert.Equal(t, iftable.KindLoopback, iface.Kind)
}

func TestTranslatePreservesExistingAttachment(t *testing.T) {
	loLink, err := netlink.LinkByName("lo")
	require.NoError(t, err, "loopback interface must exist on a Linux host")

	pub := &pubtable.Published[iftable.Table]{}
	writer := iftable.NewWriter(pub)
	require.NoError(t, writer.AddOrUpdate(iftable.Interface{
		Index:      uint32(loLink.Attrs().Index),
		Name:       "lo",
		Kind:       iftable.KindLoopback,
		Attachment: iftable.Attachment{Kind: iftable.AttachmentVRF, VRF: 7},
	}))

	src := New(writer, log.NewNopLogger())
	iface, err := src.translate(loLink)
	require.NoError(t, err)
	assert.Equal(t, iftable.Attachment{Kind: iftable.AttachmentVRF, VRF: 7}, iface.Attachment)
}

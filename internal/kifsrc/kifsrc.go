// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Package kifsrc is an optional kernel interface source (SPEC_FULL.md
// §4.3): it lists host network interfaces and their addresses with
// github.com/vishvananda/netlink and republishes them into
// internal/iftable, the same way the teacher's internal/local and
// internal/lbnodeagent packages use netlink for interface/address
// discovery. It is a discovery mechanism, not the packet-burst driver
// — that stays wholly external per spec.md §1.
package kifsrc

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/go-kit/kit/log"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"

	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/packet"
)

// Source lists kernel interfaces and republishes them into an
// iftable.Writer. VRF/bridge-domain attachment is config-driven, not
// kernel-observed, so Sync preserves whatever Attachment an interface
// already carries rather than resetting it on every sync.
type Source struct {
	writer *iftable.Writer
	logger log.Logger
}

// New returns a Source writing through w.
func New(w *iftable.Writer, logger log.Logger) *Source {
	return &Source{writer: w, logger: logger}
}

// Sync lists every netlink link on the host, translates each into an
// iftable.Interface, and publishes the result. An interface that
// fails translation or validation (e.g. a VTEP missing its required
// single unicast address) is logged and skipped rather than aborting
// the whole sync, so one misconfigured interface does not blind the
// gateway to every other interface.
func (s *Source) Sync() error {
	links, err := netlink.LinkList()
	if err != nil {
		return fmt.Errorf("kifsrc: listing links: %w", err)
	}
	for _, link := range links {
		iface, err := s.translate(link)
		if err != nil {
			s.logger.Log("op", "sync", "link", link.Attrs().Name, "err", err)
			continue
		}
		if err := s.writer.AddOrUpdate(iface); err != nil {
			s.logger.Log("op", "sync", "link", link.Attrs().Name, "err", err)
			continue
		}
	}
	s.writer.Publish()
	return nil
}

func (s *Source) translate(link netlink.Link) (iftable.Interface, error) {
	attrs := link.Attrs()

	addrs, err := linkAddresses(link)
	if err != nil {
		return iftable.Interface{}, err
	}

	var mac packet.Mac
	copy(mac[:], attrs.HardwareAddr)

	iface := iftable.Interface{
		Index:     uint32(attrs.Index),
		Name:      attrs.Name,
		Kind:      classifyKind(link),
		Admin:     adminState(attrs.Flags),
		Oper:      operState(attrs.OperState),
		MAC:       mac,
		MTU:       attrs.MTU,
		Addresses: addrs,
	}

	if existing, ok := s.writer.Get(iface.Index); ok {
		iface.Attachment = existing.Attachment
	}

	return iface, nil
}

func linkAddresses(link netlink.Link) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, family := range []int{nl.FAMILY_V4, nl.FAMILY_V6} {
		addrs, err := netlink.AddrList(link, family)
		if err != nil {
			return nil, fmt.Errorf("listing addresses: %w", err)
		}
		for _, a := range addrs {
			ip, ok := netip.AddrFromSlice(a.IPNet.IP)
			if !ok {
				continue
			}
			ones, _ := a.IPNet.Mask.Size()
			prefixes = append(prefixes, netip.PrefixFrom(ip.Unmap(), ones))
		}
	}
	return prefixes, nil
}

func classifyKind(link netlink.Link) iftable.Kind {
	attrs := link.Attrs()
	switch {
	case attrs.Name == "lo":
		return iftable.KindLoopback
	case link.Type() == "vxlan":
		return iftable.KindVTEP
	case link.Type() == "vlan":
		return iftable.KindVLANSubInterface
	default:
		return iftable.KindEthernet
	}
}

func adminState(flags net.Flags) iftable.AdminState {
	if flags&net.FlagUp != 0 {
		return iftable.AdminUp
	}
	return iftable.AdminDown
}

func operState(state netlink.LinkOperState) iftable.OperState {
	if state == netlink.OperUp {
		return iftable.OperUp
	}
	return iftable.OperDown
}

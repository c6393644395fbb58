// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

// Cause is the closed set of reasons a packet's journey through the
// pipeline can end. Once set on a packet's metadata it is sticky: no
// later stage may overwrite it or continue mutating forwarding state.
type Cause uint8

const (
	// CauseNone means the packet has not yet terminated.
	CauseNone Cause = iota
	CauseInternalFailure
	CauseNotEthernet
	CauseNotIP
	CauseMacNotForUs
	CauseInterfaceDetached
	CauseInterfaceAdmDown
	CauseInterfaceOperDown
	CauseInterfaceUnknown
	CauseInterfaceUnsupported
	CauseNatOutOfResources
	CauseNatFailure
	CauseRouteFailure
	CauseRouteDrop
	CauseHopLimitExceeded
	CauseFiltered
	CauseUnhandled
	CauseMissL2Resolution
	CauseInvalidDstMac
	CauseMalformed
	CauseUnroutable
	CauseLocal
	CauseDelivered
)

var causeNames = map[Cause]string{
	CauseNone:                 "None",
	CauseInternalFailure:      "InternalFailure",
	CauseNotEthernet:          "NotEthernet",
	CauseNotIP:                "NotIp",
	CauseMacNotForUs:          "MacNotForUs",
	CauseInterfaceDetached:    "InterfaceDetached",
	CauseInterfaceAdmDown:     "InterfaceAdmDown",
	CauseInterfaceOperDown:    "InterfaceOperDown",
	CauseInterfaceUnknown:     "InterfaceUnknown",
	CauseInterfaceUnsupported: "InterfaceUnsupported",
	CauseNatOutOfResources:    "NatOutOfResources",
	CauseNatFailure:           "NatFailure",
	CauseRouteFailure:         "RouteFailure",
	CauseRouteDrop:            "RouteDrop",
	CauseHopLimitExceeded:     "HopLimitExceeded",
	CauseFiltered:             "Filtered",
	CauseUnhandled:            "Unhandled",
	CauseMissL2Resolution:     "MissL2Resolution",
	CauseInvalidDstMac:        "InvalidDstMac",
	CauseMalformed:            "Malformed",
	CauseUnroutable:           "Unroutable",
	CauseLocal:                "Local",
	CauseDelivered:            "Delivered",
}

// String implements fmt.Stringer for structured logging of drop/done
// statistics.
func (c Cause) String() string {
	if s, ok := causeNames[c]; ok {
		return s
	}
	return "Unknown"
}

// Flags are per-packet metadata bits stages may set; none of them are
// sticky the way Cause is.
type Flags uint8

const (
	FlagBroadcast Flags = 1 << iota
	FlagNeedsChecksumRefresh
	FlagLocalDelivery
	FlagKeepOnDrop
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

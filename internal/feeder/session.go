// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package feeder

import (
	"errors"
	"io"
)

// Handler applies the effect of a decoded request to the server's
// writer-side tables (internal/rib, internal/rmac, internal/iftable).
// A method returning a non-nil error yields StatusFailure with the
// error text carried as the response payload.
type Handler interface {
	AddRoute(AddRouteRequest) error
	DelRoute(DelRouteRequest) error
	AddRmac(RmacRequest) error
	DelRmac(RmacRequest) error
	AddIfAddress(IfAddressRequest) error
	DelIfAddress(IfAddressRequest) error
	Get(GetRequest) ([]byte, error)
}

// Session serves one route-feeder connection: it enforces the
// version handshake, gates Add* operations on configuration having
// been applied, and dispatches everything else to Handler. One
// Session exists per accepted connection; the server (outside this
// package) is responsible for accepting connections and spawning a
// Session goroutine per one, the way external RPC handling is meant
// to run on its own executor per spec.md §5.
type Session struct {
	conn          io.ReadWriter
	handler       Handler
	configApplied func() bool

	connected bool
}

// NewSession returns a Session ready to Serve conn. configApplied may
// be nil, meaning Add* operations are always accepted; pass
// internal/gwconfig's "has a generation been committed" predicate in
// production.
func NewSession(conn io.ReadWriter, handler Handler, configApplied func() bool) *Session {
	return &Session{conn: conn, handler: handler, configApplied: configApplied}
}

// Serve reads and handles requests until the connection is closed or
// a framing error occurs. It returns nil on a clean EOF.
func (s *Session) Serve() error {
	for {
		req, err := ReadRequest(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		resp := s.handle(req)
		if err := WriteResponse(s.conn, resp); err != nil {
			return err
		}
	}
}

func (s *Session) handle(req Request) Response {
	if req.Op == OpConnect {
		return s.handleConnect(req)
	}
	if !s.connected {
		return invalidRequest(req.Seq, "connect must be the first request")
	}
	switch req.Op {
	case OpAddRoute:
		ar, err := decodeAddRouteRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		if !s.addAllowed() {
			return ok(req.Seq)
		}
		if err := s.handler.AddRoute(ar); err != nil {
			return failure(req.Seq, err.Error())
		}
		return ok(req.Seq)
	case OpDelRoute:
		dr, err := decodeDelRouteRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		if err := s.handler.DelRoute(dr); err != nil {
			return failure(req.Seq, err.Error())
		}
		return ok(req.Seq)
	case OpAddRmac:
		rr, err := decodeRmacRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		if !s.addAllowed() {
			return ok(req.Seq)
		}
		if err := s.handler.AddRmac(rr); err != nil {
			return failure(req.Seq, err.Error())
		}
		return ok(req.Seq)
	case OpDelRmac:
		rr, err := decodeRmacRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		if err := s.handler.DelRmac(rr); err != nil {
			return failure(req.Seq, err.Error())
		}
		return ok(req.Seq)
	case OpAddIfAddress:
		ar, err := decodeIfAddressRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		if !s.addAllowed() {
			return ok(req.Seq)
		}
		if err := s.handler.AddIfAddress(ar); err != nil {
			return failure(req.Seq, err.Error())
		}
		return ok(req.Seq)
	case OpDelIfAddress:
		dr, err := decodeIfAddressRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		if err := s.handler.DelIfAddress(dr); err != nil {
			return failure(req.Seq, err.Error())
		}
		return ok(req.Seq)
	case OpGet:
		gr, err := decodeGetRequest(req.Payload)
		if err != nil {
			return invalidRequest(req.Seq, err.Error())
		}
		payload, err := s.handler.Get(gr)
		if err != nil {
			return failure(req.Seq, err.Error())
		}
		return Response{Seq: req.Seq, Status: StatusOk, Payload: payload}
	default:
		return invalidRequest(req.Seq, "unknown opcode")
	}
}

func (s *Session) handleConnect(req Request) Response {
	cr, err := decodeConnectRequest(req.Payload)
	if err != nil {
		return invalidRequest(req.Seq, err.Error())
	}
	if cr.Version != CurrentVersion {
		s.connected = false
		return failure(req.Seq, "protocol version mismatch, reconnect required")
	}
	s.connected = true
	return Response{Seq: req.Seq, Status: StatusOk}
}

// addAllowed reports whether Add* operations currently take effect,
// per spec.md §6: "The server ignores Add* while no configuration is
// applied." With no predicate configured, Add* is always allowed.
func (s *Session) addAllowed() bool {
	return s.configApplied == nil || s.configApplied()
}

func ok(seq uint64) Response { return Response{Seq: seq, Status: StatusOk} }

func failure(seq uint64, msg string) Response {
	return Response{Seq: seq, Status: StatusFailure, Payload: []byte(msg)}
}

func invalidRequest(seq uint64, msg string) Response {
	return Response{Seq: seq, Status: StatusInvalidRequest, Payload: []byte(msg)}
}

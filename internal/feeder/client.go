// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package feeder

import (
	"fmt"
	"io"
	"sync"
)

// Client is a synchronous route-feeder peer: it assigns sequence
// numbers and waits for each response before sending the next
// request. A real route feeder may pipeline several in flight, but
// this module only ever drives one client per connection, so the
// simpler synchronous shape is what internal/gwconfig's commit path
// needs.
type Client struct {
	mu   sync.Mutex
	conn io.ReadWriter
	seq  uint64
}

// NewClient returns a Client that has not yet completed the version
// handshake; call Connect before anything else.
func NewClient(conn io.ReadWriter) *Client {
	return &Client{conn: conn}
}

func (c *Client) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// roundTrip must be called with c.mu held.
func (c *Client) roundTrip(op OpCode, payload []byte) (Response, error) {
	req := Request{Seq: c.nextSeq(), Op: op, Payload: payload}
	if err := WriteRequest(c.conn, req); err != nil {
		return Response{}, fmt.Errorf("feeder: writing %s request: %w", op, err)
	}
	resp, err := ReadResponse(c.conn)
	if err != nil {
		return Response{}, fmt.Errorf("feeder: reading %s response: %w", op, err)
	}
	if resp.Seq != req.Seq {
		return Response{}, fmt.Errorf("feeder: response sequence %d does not match request sequence %d", resp.Seq, req.Seq)
	}
	return resp, nil
}

func statusError(op OpCode, resp Response) error {
	return fmt.Errorf("feeder: %s: %s: %s", op, resp.Status, resp.Payload)
}

// Connect performs the version handshake. A version mismatch returns
// an error; the caller must open a new connection to retry.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.roundTrip(OpConnect, ConnectRequest{Version: CurrentVersion}.encode())
	if err != nil {
		return err
	}
	if resp.Status != StatusOk {
		return statusError(OpConnect, resp)
	}
	return nil
}

// AddRoute sends an AddRoute request and returns an error unless the
// server reports StatusOk. A silently ignored Add* (no configuration
// applied yet) also reports StatusOk, by design — the client cannot
// distinguish "applied" from "ignored" from the response alone.
func (c *Client) AddRoute(req AddRouteRequest) error {
	payload, err := req.encode()
	if err != nil {
		return err
	}
	return c.do(OpAddRoute, payload)
}

// DelRoute sends a DelRoute request.
func (c *Client) DelRoute(req DelRouteRequest) error {
	payload, err := req.encode()
	if err != nil {
		return err
	}
	return c.do(OpDelRoute, payload)
}

// AddRmac sends an AddRmac request.
func (c *Client) AddRmac(req RmacRequest) error {
	payload, err := req.encode()
	if err != nil {
		return err
	}
	return c.do(OpAddRmac, payload)
}

// DelRmac sends a DelRmac request.
func (c *Client) DelRmac(req RmacRequest) error {
	payload, err := req.encode()
	if err != nil {
		return err
	}
	return c.do(OpDelRmac, payload)
}

// AddIfAddress sends an AddIfAddress request.
func (c *Client) AddIfAddress(req IfAddressRequest) error {
	payload, err := req.encode()
	if err != nil {
		return err
	}
	return c.do(OpAddIfAddress, payload)
}

// DelIfAddress sends a DelIfAddress request.
func (c *Client) DelIfAddress(req IfAddressRequest) error {
	payload, err := req.encode()
	if err != nil {
		return err
	}
	return c.do(OpDelIfAddress, payload)
}

// Get sends a Get request and returns the handler-defined payload.
func (c *Client) Get(req GetRequest) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.roundTrip(OpGet, req.encode())
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOk {
		return nil, statusError(OpGet, resp)
	}
	return resp.Payload, nil
}

func (c *Client) do(op OpCode, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.roundTrip(op, payload)
	if err != nil {
		return err
	}
	if resp.Status != StatusOk {
		return statusError(op, resp)
	}
	return nil
}

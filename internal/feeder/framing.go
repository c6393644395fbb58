// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package feeder

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single frame's payload so a misbehaving or
// desynchronized peer cannot make the server allocate unbounded
// memory on a bogus length prefix.
const MaxMessageSize = 1 << 20

// Request is one framed request: a 4-byte length prefix, an 8-byte
// sequence number the peer assigns and the server echoes back, a
// 1-byte opcode, and the operation-specific payload.
type Request struct {
	Seq     uint64
	Op      OpCode
	Payload []byte
}

// Response is one framed response: length prefix, echoed sequence
// number, a 1-byte status, and an operation-specific payload (empty
// for Ok/Failure/InvalidRequest on the mutating operations; a
// handler-defined blob for Get).
type Response struct {
	Seq     uint64
	Status  Status
	Payload []byte
}

// WriteRequest frames and writes req to w.
func WriteRequest(w io.Writer, req Request) error {
	return writeFrame(w, req.Seq, uint8(req.Op), req.Payload)
}

// ReadRequest reads and unframes one request from r.
func ReadRequest(r io.Reader) (Request, error) {
	seq, tag, payload, err := readFrame(r)
	if err != nil {
		return Request{}, err
	}
	return Request{Seq: seq, Op: OpCode(tag), Payload: payload}, nil
}

// WriteResponse frames and writes resp to w.
func WriteResponse(w io.Writer, resp Response) error {
	return writeFrame(w, resp.Seq, uint8(resp.Status), resp.Payload)
}

// ReadResponse reads and unframes one response from r.
func ReadResponse(r io.Reader) (Response, error) {
	seq, tag, payload, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	return Response{Seq: seq, Status: Status(tag), Payload: payload}, nil
}

func writeFrame(w io.Writer, seq uint64, tag uint8, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("feeder: payload of %d bytes exceeds MaxMessageSize", len(payload))
	}
	frame := make([]byte, 4+8+1+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(8+1+len(payload)))
	binary.BigEndian.PutUint64(frame[4:12], seq)
	frame[12] = tag
	copy(frame[13:], payload)
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader) (seq uint64, tag uint8, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n < 9 {
		return 0, 0, nil, fmt.Errorf("feeder: frame length %d shorter than header", n)
	}
	if n-9 > MaxMessageSize {
		return 0, 0, nil, fmt.Errorf("feeder: frame payload of %d bytes exceeds MaxMessageSize", n-9)
	}
	body := make([]byte, n)
	if _, err = io.ReadFull(r, body); err != nil {
		return 0, 0, nil, fmt.Errorf("feeder: reading frame body: %w", err)
	}
	seq = binary.BigEndian.Uint64(body[0:8])
	tag = body[8]
	payload = body[9:]
	return seq, tag, payload, nil
}

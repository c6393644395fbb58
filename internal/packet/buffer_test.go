// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBufferHeadroomTailroom(t *testing.T) {
	b := NewBuffer(64, 32, 100)
	assert.Equal(t, 64, b.Headroom())
	assert.Equal(t, 32, b.Tailroom())
	assert.Equal(t, 100, b.Len())
}

func TestPrependWithinHeadroom(t *testing.T) {
	b := NewBuffer(50, 0, 10)
	prefix, err := b.Prepend(50)
	require.NoError(t, err)
	assert.Len(t, prefix, 50)
	assert.Equal(t, 0, b.Headroom())
	assert.Equal(t, 60, b.Len())
}

func TestPrependBeyondHeadroomFails(t *testing.T) {
	b := NewBuffer(10, 0, 10)
	_, err := b.Prepend(11)
	assert.Error(t, err)
	assert.Equal(t, 10, b.Headroom(), "failed prepend must not mutate the buffer")
}

func TestAppendWithinTailroom(t *testing.T) {
	b := NewBuffer(0, 20, 10)
	suffix, err := b.Append(20)
	require.NoError(t, err)
	assert.Len(t, suffix, 20)
	assert.Equal(t, 0, b.Tailroom())
}

func TestAppendBeyondTailroomFails(t *testing.T) {
	b := NewBuffer(0, 5, 10)
	_, err := b.Append(6)
	assert.Error(t, err)
}

func TestTrimFromStartAndEnd(t *testing.T) {
	b := NewBuffer(10, 10, 40)
	require.NoError(t, b.TrimFromStart(10))
	assert.Equal(t, 30, b.Len())
	assert.Equal(t, 20, b.Headroom())

	require.NoError(t, b.TrimFromEnd(10))
	assert.Equal(t, 20, b.Len())
	assert.Equal(t, 20, b.Tailroom())
}

func TestTrimBeyondLengthFails(t *testing.T) {
	b := NewBuffer(0, 0, 10)
	assert.Error(t, b.TrimFromStart(11))
	assert.Error(t, b.TrimFromEnd(11))
}

func TestPrependThenAppendRoundTrip(t *testing.T) {
	b := NewBuffer(8, 8, 20)
	copy(b.Bytes(), []byte("01234567890123456789"))
	hdr, err := b.Prepend(8)
	require.NoError(t, err)
	copy(hdr, []byte("HEADER!!"))
	_, err = b.Append(8)
	require.NoError(t, err)

	assert.Equal(t, 36, b.Len())
	assert.Equal(t, byte('H'), b.Bytes()[0])
	assert.Equal(t, byte('0'), b.Bytes()[8])
}

func TestWrapBuffer(t *testing.T) {
	storage := make([]byte, 64)
	b := WrapBuffer(storage, 16)
	assert.Equal(t, 16, b.Headroom())
	assert.Equal(t, 48, b.Len())
	assert.Equal(t, 0, b.Tailroom())
}

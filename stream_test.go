// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteStreamTakeExact(t *testing.T) {
	s := newByteStream([]byte{1, 2, 3, 4, 5})

	b, ok := s.take(3)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)
	assert.Equal(t, 2, s.remaining())
}

func TestByteStreamTakeInsufficientLeavesCursor(t *testing.T) {
	s := newByteStream([]byte{1, 2, 3})

	_, ok := s.take(10)
	assert.False(t, ok)
	assert.Equal(t, 3, s.remaining(), "failed take must not advance the cursor")

	b, ok := s.take(3)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestByteStreamTakeByte(t *testing.T) {
	s := newByteStream([]byte{0xAB})
	b, ok := s.takeByte()
	require.True(t, ok)
	assert.Equal(t, byte(0xAB), b)

	_, ok = s.takeByte()
	assert.False(t, ok)
}

func TestByteStreamPeekDoesNotAdvance(t *testing.T) {
	s := newByteStream([]byte{9, 8, 7})
	b, ok := s.peek(2)
	require.True(t, ok)
	assert.Equal(t, []byte{9, 8}, b)
	assert.Equal(t, 3, s.remaining())
}

func TestByteStreamRewind(t *testing.T) {
	s := newByteStream([]byte{1, 2, 3, 4})
	mark := s.mark()

	_, _ = s.take(2)
	s.rewind(mark)

	b, ok := s.take(4)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestByteStreamReentrantOnShortInput(t *testing.T) {
	// §4.1 / §7: a short take must return without side effect and be
	// re-entrant once the host redelivers enough bytes.
	partial := newByteStream([]byte{0, 0})
	_, ok := partial.take(4)
	assert.False(t, ok)

	full := newByteStream([]byte{0, 0, 0, 1})
	b, ok := full.take(4)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 1}, b)
}

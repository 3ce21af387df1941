// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

// byteStream assembles a borrowed chunk of inbound bytes for one Ingest
// call. It owns no buffer of its own: the caller's slice is borrowed for the
// duration of the call only, matching the host-chunked contract — if take
// cannot satisfy a request, the in-flight parse is abandoned for this call
// and the host is expected to redeliver the same prefix (or buffer
// externally) on its next push.
type byteStream struct {
	data []byte
	pos  int
}

// newByteStream wraps a freshly pushed chunk of inbound bytes.
func newByteStream(data []byte) *byteStream {
	return &byteStream{data: data}
}

// take returns the next n bytes and advances the cursor, or reports
// insufficient (ok=false) and leaves the cursor untouched.
func (s *byteStream) take(n int) (b []byte, ok bool) {
	if n < 0 || s.pos+n > len(s.data) {
		return nil, false
	}
	b = s.data[s.pos : s.pos+n]
	s.pos += n
	return b, true
}

// takeByte returns the next single byte, or reports insufficient.
func (s *byteStream) takeByte() (byte, bool) {
	b, ok := s.take(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// peek returns the next n bytes without advancing the cursor, or reports
// insufficient. None of the message handlers call it; only the stream tests
// do.
func (s *byteStream) peek(n int) (b []byte, ok bool) {
	if n < 0 || s.pos+n > len(s.data) {
		return nil, false
	}
	return s.data[s.pos : s.pos+n], true
}

// remaining returns the number of unconsumed bytes left in the chunk.
func (s *byteStream) remaining() int {
	return len(s.data) - s.pos
}

// mark returns the current cursor position, to be passed to rewind if a
// handler needs to abandon a partially-attempted read (keeping the "read
// header fully before committing any mutation" contract in §4.1 honest even
// when a handler peeks ahead before deciding how to proceed).
func (s *byteStream) mark() int {
	return s.pos
}

// rewind resets the cursor to a position previously returned by mark.
func (s *byteStream) rewind(pos int) {
	s.pos = pos
}

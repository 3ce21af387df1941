// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "encoding/binary"

// CopyRectEncoder emits the CopyRect encoding (RFC 6143 Section 7.7.2): a
// 4-byte source-coordinate payload instead of pixel data, telling the
// client to copy an already-displayed rectangle to a new position. Used
// only for rectangles in a client's copyPart, never negotiated as a
// preferred encoding for draw-part rectangles.
type CopyRectEncoder struct{}

// EncodingType returns the CopyRect wire encoding number.
func (*CopyRectEncoder) EncodingType() int32 { return EncodingCopyRect }

// RectCount reports that CopyRect always emits exactly one update-rect.
func (*CopyRectEncoder) RectCount(uint16, uint16) (int, bool) { return 1, true }

// Close is a no-op: CopyRect keeps no per-client state.
func (*CopyRectEncoder) Close(*Client) {}

// Encode is unused directly by the scheduler (see emitCopyRects, which also
// needs the (dx, dy) vector that Encoder's signature doesn't carry) but is
// implemented to satisfy the Encoder interface for registry lookups and
// extension code that wants to treat CopyRect uniformly with draw encoders.
func (e *CopyRectEncoder) Encode(c *Client, x, y int32, w, h uint16) error {
	c.mu.Lock()
	dx, dy := c.copyDX, c.copyDY
	c.mu.Unlock()
	return e.emit(c, x, y, w, h, dx, dy)
}

// emit writes the rectangle header and 4-byte source-coordinate payload for
// one CopyRect rectangle.
func (e *CopyRectEncoder) emit(c *Client, x, y int32, w, h uint16, dx, dy int32) error {
	if err := c.sendRectangleHeader(x, y, w, h, EncodingCopyRect); err != nil {
		return err
	}

	srcX := x - dx
	srcY := y - dy

	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(srcX))
	binary.BigEndian.PutUint16(buf[2:4], uint16(srcY))
	return c.writeOutput(buf)
}

// emitCopyRects sends every rectangle of copyPart as a CopyRect update,
// ordered per §4.5 so that a client copying in place never overwrites pixels
// it has not yet read as a source: x is walked in reverse when dx > 0, y in
// reverse when dy > 0.
func emitCopyRects(c *Client, copyPart *Region, dx, dy int32) error {
	enc := &CopyRectEncoder{}
	reverseX := dx > 0
	reverseY := dy > 0

	for _, r := range copyPart.SortedRects(reverseX, reverseY) {
		if err := enc.emit(c, r.X1, r.Y1, r.Width(), r.Height(), dx, dy); err != nil {
			return err
		}
	}
	return nil
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "bytes"

// RawEncoder emits uncompressed pixel data as defined in RFC 6143 Section
// 7.7.1, translated from the screen's native pixel format into the
// requesting client's negotiated format. Raw is the mandatory baseline: all
// other encoders may fall back to it.
type RawEncoder struct{}

// EncodingType returns the Raw wire encoding number.
func (*RawEncoder) EncodingType() int32 { return EncodingRaw }

// RectCount reports that Raw always emits exactly one update-rect for the
// whole rectangle.
func (*RawEncoder) RectCount(uint16, uint16) (int, bool) { return 1, true }

// Close is a no-op: Raw keeps no per-client state.
func (*RawEncoder) Close(*Client) {}

// Encode writes an update-rect header followed by the rectangle's pixel
// rows, translated into the client's pixel format. Per §4.6, it determines
// linesPerFlush from the client's remaining scratch space and refuses to
// serve a rectangle if even one translated row would not fit once flushed.
func (e *RawEncoder) Encode(c *Client, x, y int32, w, h uint16) error {
	if err := c.sendRectangleHeader(x, y, w, h, EncodingRaw); err != nil {
		return err
	}
	return e.encodeBody(c, x, y, w, h)
}

// encodeBody writes the pixel rows only, with no rectangle header — split
// out so fallbackEncoder can tag a rectangle with its own wire encoding
// number while reusing Raw's translation loop for the payload.
func (e *RawEncoder) encodeBody(c *Client, x, y int32, w, h uint16) error {
	if w == 0 || h == 0 {
		return nil
	}

	c.mu.Lock()
	pixelFormat := c.pixelFormat
	colorMap := c.colorMap
	c.mu.Unlock()

	writer := NewPixelWriter(pixelFormat, colorMap)
	bytesPerLine := int(w) * writer.BytesPerPixel()
	if bytesPerLine == 0 {
		return encodingError("RawEncoder.Encode", "zero-width translated row", nil)
	}

	fb, stride := c.screen.Framebuffer()
	serverFormat := c.screen.PixelFormat()
	serverBPP := int(serverFormat.BPP / 8)
	reader := NewPixelReader(serverFormat, c.screen.ColorMapArray())

	for row := int32(0); row < int32(h); row++ {
		if c.outputSpaceBytes() < bytesPerLine {
			if err := c.flushOutput(); err != nil {
				return err
			}
			if c.outputSpaceBytes() < bytesPerLine {
				return resourceError("RawEncoder.Encode",
					"output buffer too small to hold a single translated row", nil)
			}
		}

		var line bytes.Buffer
		line.Grow(bytesPerLine)
		srcY := y + row
		rowStart := int(srcY)*stride + int(x)*serverBPP
		for col := int32(0); col < int32(w); col++ {
			offset := rowStart + int(col)*serverBPP
			if offset < 0 || offset+serverBPP > len(fb) {
				return encodingError("RawEncoder.Encode", "source pixel out of framebuffer bounds", nil)
			}
			color, err := reader.ReadPixelColor(bytes.NewReader(fb[offset : offset+serverBPP]))
			if err != nil {
				return encodingError("RawEncoder.Encode", "failed to read source pixel", err)
			}
			if err := writer.WritePixelColor(&line, color); err != nil {
				return encodingError("RawEncoder.Encode", "failed to translate pixel", err)
			}
		}

		if err := c.writeOutput(line.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

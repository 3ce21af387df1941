// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "bytes"

// Hextile encoding constants as defined in RFC 6143 Section 7.7.4.
const (
	HextileRaw                 = 1
	HextileBackgroundSpecified = 2
	HextileForegroundSpecified = 4
	HextileAnySubrects         = 8
	HextileSubrectsColoured    = 16

	HextileTileSize = 16
)

// HextileEncoder implements Hextile (RFC 6143 §7.7.4): a rectangle is
// divided into 16x16 tiles, each independently subencoded. This encoder
// always marks every tile HextileRaw and writes its pixels verbatim — per
// §4.6 a tile-granularity fallback to raw is permitted, and it keeps this
// encoder's byte count identical to Raw's per tile rather than risking an
// over-count from a real run-length analysis.
type HextileEncoder struct{}

// EncodingType returns the Hextile wire encoding number.
func (*HextileEncoder) EncodingType() int32 { return EncodingHextile }

// RectCount reports that Hextile always collapses its tiles into exactly
// one update-rect; tiling lives inside that rect's own payload.
func (*HextileEncoder) RectCount(uint16, uint16) (int, bool) { return 1, true }

// Close is a no-op: Hextile keeps no per-client state.
func (*HextileEncoder) Close(*Client) {}

// Encode writes one Hextile rectangle as a grid of raw-subencoded tiles.
func (e *HextileEncoder) Encode(c *Client, x, y int32, w, h uint16) error {
	if err := c.sendRectangleHeader(x, y, w, h, EncodingHextile); err != nil {
		return err
	}
	if w == 0 || h == 0 {
		return nil
	}

	c.mu.Lock()
	pixelFormat := c.pixelFormat
	colorMap := c.colorMap
	c.mu.Unlock()

	fb, stride := c.screen.Framebuffer()
	serverFormat := c.screen.PixelFormat()
	serverBPP := int(serverFormat.BPP / 8)
	reader := NewPixelReader(serverFormat, c.screen.ColorMapArray())
	writer := NewPixelWriter(pixelFormat, colorMap)

	for tileY := int32(0); tileY < int32(h); tileY += HextileTileSize {
		tileHeight := int32(HextileTileSize)
		if tileY+tileHeight > int32(h) {
			tileHeight = int32(h) - tileY
		}
		for tileX := int32(0); tileX < int32(w); tileX += HextileTileSize {
			tileWidth := int32(HextileTileSize)
			if tileX+tileWidth > int32(w) {
				tileWidth = int32(w) - tileX
			}

			if err := c.writeOutput([]byte{HextileRaw}); err != nil {
				return err
			}

			var tile bytes.Buffer
			for row := int32(0); row < tileHeight; row++ {
				srcY := y + tileY + row
				rowStart := int(srcY)*stride + int(x+tileX)*serverBPP
				for col := int32(0); col < tileWidth; col++ {
					offset := rowStart + int(col)*serverBPP
					if offset < 0 || offset+serverBPP > len(fb) {
						return encodingError("HextileEncoder.Encode", "source pixel out of framebuffer bounds", nil)
					}
					color, err := reader.ReadPixelColor(bytes.NewReader(fb[offset : offset+serverBPP]))
					if err != nil {
						return encodingError("HextileEncoder.Encode", "failed to read source pixel", err)
					}
					if err := writer.WritePixelColor(&tile, color); err != nil {
						return encodingError("HextileEncoder.Encode", "failed to translate pixel", err)
					}
				}
			}
			if err := c.writeOutput(tile.Bytes()); err != nil {
				return err
			}
		}
	}

	return nil
}

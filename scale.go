// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// toScreenSpace converts a rectangle expressed in a client's scaled view
// coordinates back to screen (framebuffer) coordinates, per the
// SetScale/PalmVNCSetScaleFactor pseudo-encodings. A scale of 0 or 1 is a
// no-op.
func (c *Client) toScreenSpace(x, y int32, w, h uint16) (int32, int32, uint16, uint16) {
	c.mu.Lock()
	scale := c.scale
	c.mu.Unlock()

	if scale == 0 || scale == 1 {
		return x, y, w, h
	}

	return int32(float32(x) / scale), int32(float32(y) / scale),
		uint16(float32(w) / scale), uint16(float32(h) / scale) // #nosec G115 - scale factor is bounded to [0.01, 2.55]
}

// toClientSpace converts a screen-space rectangle to the dimensions a scaled
// client should see it as.
func (c *Client) toClientSpace(w, h uint16) (uint16, uint16) {
	c.mu.Lock()
	scale := c.scale
	c.mu.Unlock()

	if scale == 0 || scale == 1 {
		return w, h
	}
	return uint16(float32(w) * scale), uint16(float32(h) * scale) // #nosec G115 - scale factor is bounded to [0.01, 2.55]
}

// ScaledRawEncoder resamples a screen-space rectangle down (or up) to a
// client's negotiated scale before sending it as Raw pixel data. The
// scheduler selects this encoder instead of the client's preferred one
// whenever scale != 1: resampling a compressed encoding's own internal
// tiling would require each encoder to be scale-aware individually, which
// none of this core's encoders are, so scaled views are always served Raw.
type ScaledRawEncoder struct{}

// EncodingType reports Raw, since a scaled client still receives ordinary
// Raw-tagged rectangles; the scaling is invisible on the wire.
func (*ScaledRawEncoder) EncodingType() int32 { return EncodingRaw }

// RectCount reports one update-rect, like RawEncoder.
func (*ScaledRawEncoder) RectCount(uint16, uint16) (int, bool) { return 1, true }

// Close is a no-op: scaling keeps no per-client state beyond Client.scale.
func (*ScaledRawEncoder) Close(*Client) {}

// Encode reads the screen-space rectangle (x, y, w, h), resamples it to the
// client's scale, and writes it as a Raw rectangle sized to the resampled
// dimensions.
func (e *ScaledRawEncoder) Encode(c *Client, x, y int32, w, h uint16) error {
	if w == 0 || h == 0 {
		return c.sendRectangleHeader(x, y, 0, 0, EncodingRaw)
	}

	fb, stride := c.screen.Framebuffer()
	serverFormat := c.screen.PixelFormat()
	serverBPP := int(serverFormat.BPP / 8)
	reader := NewPixelReader(serverFormat, c.screen.ColorMapArray())

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for row := 0; row < int(h); row++ {
		rowStart := int(y+int32(row))*stride + int(x)*serverBPP
		for col := 0; col < int(w); col++ {
			offset := rowStart + col*serverBPP
			if offset < 0 || offset+serverBPP > len(fb) {
				return encodingError("ScaledRawEncoder.Encode", "source pixel out of framebuffer bounds", nil)
			}
			col16, err := reader.ReadPixelColor(bytes.NewReader(fb[offset : offset+serverBPP]))
			if err != nil {
				return encodingError("ScaledRawEncoder.Encode", "failed to read source pixel", err)
			}
			img.Set(col, row, color.RGBA64{R: col16.R, G: col16.G, B: col16.B, A: 0xFFFF})
		}
	}

	scaledW, scaledH := c.toClientSpace(w, h)
	if scaledW == 0 || scaledH == 0 {
		return c.sendRectangleHeader(x, y, 0, 0, EncodingRaw)
	}
	scaled := resize.Resize(uint(scaledW), uint(scaledH), img, resize.Bilinear)

	scaledX, scaledY := c.toClientSpace(uint16(x), uint16(y)) // #nosec G115 - screen coordinates fit uint16

	if err := c.sendRectangleHeader(int32(scaledX), int32(scaledY), scaledW, scaledH, EncodingRaw); err != nil {
		return err
	}

	c.mu.Lock()
	pixelFormat := c.pixelFormat
	colorMap := c.colorMap
	c.mu.Unlock()
	writer := NewPixelWriter(pixelFormat, colorMap)

	bounds := scaled.Bounds()
	for row := bounds.Min.Y; row < bounds.Max.Y; row++ {
		var line bytes.Buffer
		for col := bounds.Min.X; col < bounds.Max.X; col++ {
			r, g, b, _ := scaled.At(col, row).RGBA()
			if err := writer.WritePixelColor(&line, Color{R: uint16(r), G: uint16(g), B: uint16(b)}); err != nil { // #nosec G115 - RGBA() already returns 16-bit-range values
				return encodingError("ScaledRawEncoder.Encode", "failed to translate scaled pixel", err)
			}
		}
		if err := c.writeOutput(line.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

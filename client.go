// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"context"
	"sync"
	"time"
)

// ClientState is the per-client protocol state, driven forward by Ingest as
// each handshake stage completes.
type ClientState int

const (
	// StateProtocolVersion is the initial state: waiting for the client's
	// 12-byte version reply.
	StateProtocolVersion ClientState = iota
	// StateSecurityType is waiting for the client's chosen security type.
	StateSecurityType
	// StateAuthentication is running the chosen security type's handshake.
	StateAuthentication
	// StateInitialisation is waiting for the client-init shared flag.
	StateInitialisation
	// StateInitialisationShared behaves like StateInitialisation but with
	// shared=true implied; no byte is read before emitting ServerInit.
	StateInitialisationShared
	// StateNormal is the steady-state message loop.
	StateNormal
	// StateClosed marks a client that will never process or emit again.
	StateClosed
)

// String returns a human-readable name for the state, used in log fields.
func (s ClientState) String() string {
	switch s {
	case StateProtocolVersion:
		return "ProtocolVersion"
	case StateSecurityType:
		return "SecurityType"
	case StateAuthentication:
		return "Authentication"
	case StateInitialisation:
		return "Initialisation"
	case StateInitialisationShared:
		return "InitialisationShared"
	case StateNormal:
		return "Normal"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ExtensionPayload is an opaque value an extension has attached to a client,
// keyed by the extension's own name.
type ExtensionPayload struct {
	Extension *Extension
	Data      interface{}
}

// ClientStats holds per-client counters, incremented as messages are parsed
// and rectangles are encoded; hosts can read them through Client.Stats without
// the core needing a metrics dependency of its own.
type ClientStats struct {
	mu              sync.Mutex
	MessagesByType  map[uint8]uint64
	RectsByEncoding map[int32]uint64
	BytesSent       uint64
	BytesReceived   uint64
	UpdatesSent     uint64
}

func newClientStats() *ClientStats {
	return &ClientStats{
		MessagesByType:  make(map[uint8]uint64),
		RectsByEncoding: make(map[int32]uint64),
	}
}

func (s *ClientStats) recordMessage(msgType uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessagesByType[msgType]++
}

func (s *ClientStats) recordRect(encoding int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RectsByEncoding[encoding]++
}

func (s *ClientStats) recordBytesSent(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesSent += uint64(n)
}

func (s *ClientStats) recordBytesReceived(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesReceived += uint64(n)
}

func (s *ClientStats) recordUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatesSent++
}

// Snapshot returns a copy of the current counters, safe to read concurrently
// with further traffic.
func (s *ClientStats) Snapshot() ClientStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMsg := make(map[uint8]uint64, len(s.MessagesByType))
	for k, v := range s.MessagesByType {
		byMsg[k] = v
	}
	byEnc := make(map[int32]uint64, len(s.RectsByEncoding))
	for k, v := range s.RectsByEncoding {
		byEnc[k] = v
	}

	return ClientStatsSnapshot{
		MessagesByType:  byMsg,
		RectsByEncoding: byEnc,
		BytesSent:       s.BytesSent,
		BytesReceived:   s.BytesReceived,
		UpdatesSent:     s.UpdatesSent,
	}
}

// Stats returns a snapshot of this client's message and rectangle counters.
func (c *Client) Stats() ClientStatsSnapshot {
	return c.stats.Snapshot()
}

// ClientStatsSnapshot is an immutable point-in-time copy of ClientStats.
type ClientStatsSnapshot struct {
	MessagesByType  map[uint8]uint64
	RectsByEncoding map[int32]uint64
	BytesSent       uint64
	BytesReceived   uint64
	UpdatesSent     uint64
}

// Client is one connected viewer. The library never owns the transport: the
// host creates a Client against a Screen, feeds inbound bytes to Ingest, and
// receives outbound bytes through the Screen's push callback.
type Client struct {
	mu sync.Mutex

	screen *Screen
	handle interface{}
	logger Logger

	state         ClientState
	majorVersion  uint8
	minorVersion  uint8
	auth          ServerAuth
	authChallenge []byte

	pixelFormat PixelFormat
	colorMap    [ColorMapSize]Color

	preferredEncoding int32
	copyRectEnabled   bool
	xCursorEnabled    bool
	richCursorEnabled bool
	cursorPosEnabled  bool
	lastRectEnabled   bool
	keyboardLedEnabled        bool
	supportedMessagesEnabled  bool
	supportedEncodingsEnabled bool
	serverIdentityEnabled     bool
	newFBSizeEnabled          bool
	extDesktopSizeEnabled     bool
	xvpEnabled                bool

	compressionLevel int
	qualityLevel     int

	modified *Region
	copy     *Region
	copyDX   int32
	copyDY   int32
	requested *Region

	startDeferring    time.Time
	startPtrDeferring time.Time
	deferUpdateTime   time.Duration
	deferPtrUpdateTime time.Duration

	lastCursorX, lastCursorY int32
	cursorWasMoved           bool
	cursorWasChanged         bool
	cursorShapeSent          bool

	cursorWidth, cursorHeight      uint16
	cursorHotspotX, cursorHotspotY uint16
	cursorColors                   []Color
	cursorMaskData                 []byte

	lastPointerX, lastPointerY int32
	lastButtonMask             uint8
	hasLastPointer             bool

	progressiveSliceHeight int32
	progressiveSliceY      int32

	scale float32

	outBuf  []byte
	outUsed int

	stats *ClientStats

	extensions map[string]*ExtensionPayload

	viewOnly      bool
	onHold        bool
	pendingResize bool
	resizeReason  uint8
	resizeResult  uint16

	lastLedState     uint8
	haveLastLedState bool

	closed bool
}

// NewClient creates a Client attached to screen, in the initial
// ProtocolVersion state, and links it into the screen's client list. handle
// is an opaque value the host uses to correlate this Client with its own
// transport/session bookkeeping; the library never interprets it.
func NewClient(screen *Screen, handle interface{}) *Client {
	c := &Client{
		screen:                 screen,
		handle:                 handle,
		logger:                 screen.logger,
		state:                  StateProtocolVersion,
		pixelFormat:            screen.pixelFormat,
		preferredEncoding:      EncodingRaw,
		modified:               NewEmptyRegion(),
		copy:                   NewEmptyRegion(),
		requested:              NewEmptyRegion(),
		deferUpdateTime:        screen.defaultDeferUpdateTime,
		deferPtrUpdateTime:     screen.defaultDeferPtrUpdateTime,
		progressiveSliceHeight: 0,
		scale:                  1.0,
		outBuf:                 make([]byte, screen.outputBufferSize),
		stats:                  newClientStats(),
		extensions:             make(map[string]*ExtensionPayload),
	}
	if screen.colorMap != nil {
		c.colorMap = screen.colorMap.ToArray()
	}

	screen.addClient(c)

	if screen.newClientHook != nil {
		screen.newClientHook(c)
	}
	for _, ext := range screen.extensions.all() {
		if ext.NewClient != nil {
			ext.NewClient(c)
		}
	}

	return c
}

// Handle returns the opaque handle the host supplied at creation.
func (c *Client) Handle() interface{} { return c.handle }

// State returns the client's current protocol state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsClosed reports whether the client has been closed; once true, Ingest and
// Process are no-ops, per the "push failure" error handling rule in §7.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the client closed. After Close, no further bytes are emitted
// to this client; its region and extension state is released, but the
// Client struct itself persists until the host calls ClientConnectionGone.
func (c *Client) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosed
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("closing client", Field{Key: "reason", Value: reason})
	}

	for _, ext := range c.extensions {
		if ext.Extension != nil && ext.Extension.Close != nil {
			ext.Extension.Close(c)
		}
	}
	c.screen.encoders.CloseClient(c)

	c.modified.Clear()
	c.copy.Clear()
	c.requested.Clear()
	c.extensions = make(map[string]*ExtensionPayload)

	c.screen.clientClosed(c)
}

// ClientConnectionGone releases a client's membership in its screen. Call
// this once the host's transport session for the client is fully torn down.
func (c *Client) ClientConnectionGone() {
	if !c.IsClosed() {
		c.Close("connection gone")
	}
	c.screen.removeClient(c)
}

// ViewOnly reports whether the client is restricted to view-only mode.
func (c *Client) ViewOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewOnly
}

// Ingest feeds a chunk of inbound bytes to the client's state machine. The
// slice is borrowed for the duration of the call only; per §4.1, a short
// read aborts this call without mutating protocol state and the host is
// expected to redeliver the same prefix (or buffer externally) next time.
func (c *Client) Ingest(ctx context.Context, data []byte) error {
	if c.IsClosed() {
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	c.stats.recordBytesReceived(len(data))
	stream := newByteStream(data)

	for stream.remaining() > 0 {
		mark := stream.mark()
		progressed, err := c.step(ctx, stream)
		if err != nil {
			c.Close(err.Error())
			return err
		}
		if !progressed {
			stream.rewind(mark)
			break
		}
		if c.IsClosed() {
			break
		}
	}

	return nil
}

// step attempts to advance the state machine by exactly one logical unit
// (one handshake stage, or one Normal-state message). It returns
// progressed=false when the stream held insufficient bytes to do so.
func (c *Client) step(ctx context.Context, s *byteStream) (progressed bool, err error) {
	state := c.State()

	switch state {
	case StateProtocolVersion:
		return c.handleProtocolVersion(s)
	case StateSecurityType:
		return c.handleSecurityType(s)
	case StateAuthentication:
		return c.handleAuthentication(ctx, s)
	case StateInitialisation:
		return c.handleClientInit(s)
	case StateInitialisationShared:
		return c.handleClientInitShared(s)
	case StateNormal:
		return c.handleNormalMessage(s)
	default:
		return false, nil
	}
}

// setState transitions the client's protocol state under lock.
func (c *Client) setState(state ClientState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

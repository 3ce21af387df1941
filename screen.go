// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"sync"
	"time"
)

// PushFunc delivers outbound bytes for one client to the host's transport.
// It returns an error if the underlying transport failed; on error the
// client is marked closed and no further bytes are pushed to it.
type PushFunc func(c *Client, data []byte) error

// PointerEventFunc is invoked when a client's pointer state should be
// applied, after scaling and deferral have already been resolved.
type PointerEventFunc func(c *Client, x, y int32, buttonMask uint8)

// KeyEventFunc is invoked when a non-view-only client presses or releases a key.
type KeyEventFunc func(c *Client, keysym uint32, down bool)

// ClipboardEventFunc is invoked when a client sends cut text.
type ClipboardEventFunc func(c *Client, text string)

// NewClientFunc is invoked once a Client has been linked into its screen.
type NewClientFunc func(c *Client)

// DisplayHookFunc runs at the start of every Process call, before any
// pseudo-rect or region accounting.
type DisplayHookFunc func(c *Client)

// DisplayFinishedHookFunc runs at the end of every Process call with the
// outcome.
type DisplayFinishedHookFunc func(c *Client, result error)

// XvpHookFunc handles an Xvp sub-message; it returns whether the requested
// power operation was accepted.
type XvpHookFunc func(c *Client, code uint8) bool

// SetDesktopSizeHookFunc handles a client's SetDesktopSize request and
// returns the ExtDesktopSize status code to report back.
type SetDesktopSizeHookFunc func(c *Client, width, height uint16, screens []ScreenLayoutEntry) uint16

// KeyboardLedStateFunc returns the host's current keyboard LED state, polled
// during each Process call when a client has KeyboardLedState enabled.
type KeyboardLedStateFunc func() uint8

// ScreenLayoutEntry is one screen in an ExtDesktopSize layout list.
type ScreenLayoutEntry struct {
	ID     uint32
	X, Y   uint16
	Width, Height uint16
	Flags  uint32
}

// Screen owns the framebuffer (by reference only), the connected clients,
// and the fan-out operations that mutate every client's pending regions.
// The library never allocates or frees the framebuffer; the host retains
// ownership and must call MarkRectModified after any write to it.
type Screen struct {
	mu sync.RWMutex

	framebuffer []byte
	width       uint16
	height      uint16
	stride      int
	pixelFormat PixelFormat
	colorMap    *ColorMap

	desktopName string

	minorVersion   uint8
	alwaysShared   bool
	neverShared    bool
	dontDisconnect bool

	auth       *AuthRegistry
	extensions *ExtensionRegistry
	encoders   *EncoderRegistry

	clients []*Client

	defaultDeferUpdateTime    time.Duration
	defaultDeferPtrUpdateTime time.Duration
	maxRectsPerUpdate         int
	outputBufferSize          int

	pushBytesFn        PushFunc
	pointerEventFn      PointerEventFunc
	keyEventFn          KeyEventFunc
	clipboardEventFn    ClipboardEventFunc
	newClientHook       NewClientFunc
	displayHook         DisplayHookFunc
	displayFinishedHook DisplayFinishedHookFunc
	xvpHook             XvpHookFunc
	setDesktopSizeHook  SetDesktopSizeHookFunc
	keyboardLedStateFn  KeyboardLedStateFunc

	pointerOwner *Client

	logger Logger
}

// ScreenConfig carries the construction-time parameters for NewScreen.
// Fields left at their zero value fall back to sensible protocol defaults.
type ScreenConfig struct {
	Framebuffer []byte
	Width       uint16
	Height      uint16
	Stride      int
	PixelFormat PixelFormat
	ColorMap    *ColorMap
	DesktopName string

	MinorVersion   uint8
	AlwaysShared   bool
	NeverShared    bool
	DontDisconnect bool

	DeferUpdateTime    time.Duration
	DeferPtrUpdateTime time.Duration
	MaxRectsPerUpdate  int
	OutputBufferSize   int

	Logger Logger
}

// NewScreen creates a Screen over an externally owned framebuffer. The
// screen starts with a default AuthRegistry (None + VNC Password) and an
// empty ExtensionRegistry; callers adjust both before accepting clients.
func NewScreen(cfg ScreenConfig) (*Screen, error) {
	validator := newInputValidator()
	if err := validator.ValidateFramebufferDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, configurationError("NewScreen", "invalid framebuffer dimensions", err)
	}
	if err := validator.ValidatePixelFormat(&cfg.PixelFormat); err != nil {
		return nil, configurationError("NewScreen", "invalid server pixel format", err)
	}

	minor := cfg.MinorVersion
	if minor == 0 {
		minor = 8
	}

	deferUpdate := cfg.DeferUpdateTime
	if deferUpdate == 0 {
		deferUpdate = 40 * time.Millisecond
	}
	deferPtr := cfg.DeferPtrUpdateTime
	if deferPtr == 0 {
		deferPtr = 0
	}

	maxRects := cfg.MaxRectsPerUpdate
	if maxRects == 0 {
		maxRects = MaxRectanglesPerUpdate
	}

	outBufSize := cfg.OutputBufferSize
	if outBufSize == 0 {
		outBufSize = 64 * 1024
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}

	s := &Screen{
		framebuffer:               cfg.Framebuffer,
		width:                     cfg.Width,
		height:                    cfg.Height,
		stride:                    cfg.Stride,
		pixelFormat:               cfg.PixelFormat,
		colorMap:                  cfg.ColorMap,
		desktopName:               cfg.DesktopName,
		minorVersion:              minor,
		alwaysShared:              cfg.AlwaysShared,
		neverShared:               cfg.NeverShared,
		dontDisconnect:            cfg.DontDisconnect,
		auth:                      NewAuthRegistry(),
		extensions:                NewExtensionRegistry(),
		encoders:                  NewEncoderRegistry(),
		defaultDeferUpdateTime:    deferUpdate,
		defaultDeferPtrUpdateTime: deferPtr,
		maxRectsPerUpdate:         maxRects,
		outputBufferSize:          outBufSize,
		logger:                    logger,
	}

	return s, nil
}

// SetCallbacks installs the host's push, pointer, and keyboard callbacks.
func (s *Screen) SetCallbacks(push PushFunc, pointer PointerEventFunc, keyboard KeyEventFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushBytesFn = push
	s.pointerEventFn = pointer
	s.keyEventFn = keyboard
}

// SetClipboardHook installs the clipboard callback.
func (s *Screen) SetClipboardHook(fn ClipboardEventFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipboardEventFn = fn
}

// SetNewClientHook installs the new-client hook.
func (s *Screen) SetNewClientHook(fn NewClientFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newClientHook = fn
}

// SetDisplayHooks installs the per-Process display and display-finished hooks.
func (s *Screen) SetDisplayHooks(start DisplayHookFunc, finished DisplayFinishedHookFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayHook = start
	s.displayFinishedHook = finished
}

// SetXvpHook installs the Xvp power-control hook.
func (s *Screen) SetXvpHook(fn XvpHookFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xvpHook = fn
}

// SetDesktopSizeHook installs the SetDesktopSize hook.
func (s *Screen) SetDesktopSizeHook(fn SetDesktopSizeHookFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDesktopSizeHook = fn
}

// SetKeyboardLedStateFunc installs the keyboard LED state poll function.
func (s *Screen) SetKeyboardLedStateFunc(fn KeyboardLedStateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyboardLedStateFn = fn
}

// SetAuth replaces the authentication registry wholesale; convenience for
// hosts that want exactly one security type offered.
func (s *Screen) SetAuth(registry *AuthRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = registry
}

// Extensions returns the screen's extension registry for third parties to
// register custom pseudo-encodings against.
func (s *Screen) Extensions() *ExtensionRegistry {
	return s.extensions
}

// Encoders returns the screen's encoder registry.
func (s *Screen) Encoders() *EncoderRegistry {
	return s.encoders
}

// pushBytes writes bytes to a client via the host callback, closing the
// client on transport failure per §7 rule 4.
func (s *Screen) pushBytes(c *Client, data []byte) error {
	s.mu.RLock()
	push := s.pushBytesFn
	s.mu.RUnlock()

	if push == nil {
		return configurationError("Screen.pushBytes", "no push callback configured", nil)
	}

	if err := push(c, data); err != nil {
		c.stats.recordBytesSent(0)
		c.Close("push failed: " + err.Error())
		return networkError("Screen.pushBytes", "push callback failed", err)
	}

	c.stats.recordBytesSent(len(data))
	return nil
}

func (s *Screen) addClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
}

func (s *Screen) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.clients {
		if existing == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	if s.pointerOwner == c {
		s.pointerOwner = nil
	}
}

func (s *Screen) clientClosed(c *Client) {
	s.mu.Lock()
	if s.pointerOwner == c {
		s.pointerOwner = nil
	}
	s.mu.Unlock()
}

// disconnectAllExcept closes every other connected client; used when a new
// client requests exclusive (non-shared) access per §4.2.
func (s *Screen) disconnectAllExcept(keep *Client) {
	s.mu.RLock()
	others := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c != keep {
			others = append(others, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range others {
		c.Close("exclusive client connected")
	}
}

// Clients returns a snapshot of the currently connected clients.
func (s *Screen) Clients() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Client(nil), s.clients...)
}

// Dimensions returns the screen's current width and height.
func (s *Screen) Dimensions() (uint16, uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// PixelFormat returns the server's pixel format.
func (s *Screen) PixelFormat() PixelFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pixelFormat
}

// Framebuffer returns the externally owned framebuffer bytes and row stride.
func (s *Screen) Framebuffer() ([]byte, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.framebuffer, s.stride
}

// ColorMapArray returns a snapshot of the screen's color map, or an all-zero
// array if the screen has none (true-color screens never consult it).
func (s *Screen) ColorMapArray() [ColorMapSize]Color {
	s.mu.RLock()
	cm := s.colorMap
	s.mu.RUnlock()
	if cm == nil {
		return [ColorMapSize]Color{}
	}
	return cm.ToArray()
}

// clampToScreen clamps and normalizes a rectangle to the screen's bounds,
// swapping coordinates if inverted, per §4.8.
func (s *Screen) clampToScreen(x1, y1, x2, y2 int32) Rectangle {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}

	width := int32(s.width)
	height := int32(s.height)

	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > width {
		x2 = width
	}
	if y2 > height {
		y2 = height
	}

	return Rectangle{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// MarkRectModified records that the pixels in [x1,y1)-[x2,y2) changed in the
// framebuffer and must be resent to every client. Out-of-bounds rectangles
// are clamped; a rectangle entirely outside the screen is a no-op.
func (s *Screen) MarkRectModified(x1, y1, x2, y2 int32) {
	if x2 <= 0 || y2 <= 0 || x1 >= int32(s.width) || y1 >= int32(s.height) {
		return
	}

	r := s.clampToScreen(x1, y1, x2, y2)
	if r.Empty() {
		return
	}

	region := NewRegionFromRect(r)

	for _, c := range s.Clients() {
		c.mu.Lock()
		c.modified = c.modified.Union(region)
		if c.startDeferring.IsZero() {
			c.startDeferring = currentTime()
		}
		c.mu.Unlock()
	}
}

// ScheduleCopyRect records that the framebuffer region [x1,y1)-[x2,y2) was
// physically moved by (dx, dy) and asks every client's per-client state to
// fold that into its copy/modified bookkeeping (§4.3).
func (s *Screen) ScheduleCopyRect(x1, y1, x2, y2, dx, dy int32) {
	if x2 <= 0 || y2 <= 0 || x1 >= int32(s.width) || y1 >= int32(s.height) {
		return
	}

	r := s.clampToScreen(x1, y1, x2, y2)
	if r.Empty() {
		return
	}

	for _, c := range s.Clients() {
		c.scheduleCopy(NewRegionFromRect(r), dx, dy)
	}
}

// SendBell sends a one-byte Bell message to every connected client.
func (s *Screen) SendBell() {
	for _, c := range s.Clients() {
		if c.IsClosed() {
			continue
		}
		_ = c.sendBell()
	}
}

// SendServerCutText sends clipboard text to every connected client.
func (s *Screen) SendServerCutText(text string) {
	for _, c := range s.Clients() {
		if c.IsClosed() {
			continue
		}
		_ = c.sendServerCutText(text)
	}
}

// UpdateClients calls Process for every connected client, including ones
// marked closed during the iteration (closed clients simply no-op).
func (s *Screen) UpdateClients() {
	for _, c := range s.Clients() {
		_ = c.Process()
	}
}

// ProcessEvents is an alias for UpdateClients kept for host code that models
// its main loop around a periodic tick with a microsecond budget; the budget
// itself is advisory and not enforced by the core.
func (s *Screen) ProcessEvents(_ time.Duration) {
	s.UpdateClients()
}

// currentTime is a seam so tests can stub wall-clock reads; production code
// always calls time.Now.
var currentTime = time.Now

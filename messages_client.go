// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"encoding/binary"
)

// handleNormalMessage reads one Normal-state message type byte and dispatches
// to its handler. It returns progressed=false if even the type byte is not
// yet available.
func (c *Client) handleNormalMessage(s *byteStream) (bool, error) {
	mark := s.mark()
	msgType, ok := s.takeByte()
	if !ok {
		return false, nil
	}

	handled, progressed, err := c.dispatchNormalMessage(msgType, s)
	if !progressed {
		s.rewind(mark)
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if !handled {
		return true, protocolError("Client.handleNormalMessage",
			"unrecognized message type and no extension claimed it", nil)
	}

	c.stats.recordMessage(msgType)
	return true, nil
}

func (c *Client) dispatchNormalMessage(msgType uint8, s *byteStream) (handled bool, progressed bool, err error) {
	switch msgType {
	case MsgSetPixelFormat:
		return c.handleSetPixelFormat(s)
	case MsgSetEncodings:
		return c.handleSetEncodings(s)
	case MsgFramebufferUpdateRequest:
		return c.handleFramebufferUpdateRequest(s)
	case MsgKeyEvent:
		return c.handleKeyEvent(s)
	case MsgPointerEvent:
		return c.handlePointerEvent(s)
	case MsgClientCutText:
		return c.handleClientCutText(s)
	case MsgSetScale, MsgPalmVNCSetScaleFactor:
		return c.handleSetScale(s)
	case MsgXvp:
		return c.handleXvp(s)
	case MsgSetDesktopSize:
		return c.handleSetDesktopSize(s)
	default:
		return c.handleExtensionMessage(msgType, s)
	}
}

// handleSetPixelFormat parses the 20-byte SetPixelFormat message (type byte
// already consumed): 3 pad bytes then a 16-byte PixelFormat.
func (c *Client) handleSetPixelFormat(s *byteStream) (bool, bool, error) {
	if _, ok := s.take(3); !ok {
		return false, false, nil
	}
	raw, ok := s.take(16)
	if !ok {
		return false, false, nil
	}

	var pf PixelFormat
	if err := readPixelFormat(bytes.NewReader(raw), &pf); err != nil {
		return false, true, protocolError("Client.handleSetPixelFormat", "malformed pixel format", err)
	}

	validator := newInputValidator()
	if err := validator.ValidatePixelFormat(&pf); err != nil {
		return false, true, protocolError("Client.handleSetPixelFormat", "rejected pixel format", err)
	}

	c.mu.Lock()
	c.pixelFormat = pf
	c.colorMap = [ColorMapSize]Color{}
	c.mu.Unlock()

	return true, true, nil
}

// handleSetEncodings parses SetEncodings: 1 pad byte, 2-byte count, then
// count 4-byte signed encoding numbers.
func (c *Client) handleSetEncodings(s *byteStream) (bool, bool, error) {
	if _, ok := s.take(1); !ok {
		return false, false, nil
	}
	countBytes, ok := s.take(2)
	if !ok {
		return false, false, nil
	}
	count := binary.BigEndian.Uint16(countBytes)

	encodings := make([]int32, 0, count)
	for i := uint16(0); i < count; i++ {
		raw, ok := s.take(4)
		if !ok {
			return false, false, nil
		}
		encodings = append(encodings, int32(binary.BigEndian.Uint32(raw))) // #nosec G115 - intentional reinterpretation of wire bits as signed
	}

	c.applyEncodings(encodings)
	return true, true, nil
}

// applyEncodings resets encoding-related flags to their defaults, then walks
// the list per §4.2: the first recognized real encoding becomes preferred;
// recognized pseudo-encodings set their flags; unrecognized numbers are
// offered to claiming extensions.
func (c *Client) applyEncodings(encodings []int32) {
	c.mu.Lock()
	c.preferredEncoding = EncodingRaw
	c.copyRectEnabled = false
	c.xCursorEnabled = false
	c.richCursorEnabled = false
	c.cursorPosEnabled = false
	c.lastRectEnabled = false
	c.keyboardLedEnabled = false
	c.supportedMessagesEnabled = false
	c.supportedEncodingsEnabled = false
	c.serverIdentityEnabled = false
	c.newFBSizeEnabled = false
	c.extDesktopSizeEnabled = false
	c.xvpEnabled = false
	c.mu.Unlock()

	preferredChosen := false

	for _, enc := range encodings {
		switch enc {
		case EncodingRaw, EncodingRRE, EncodingCoRRE, EncodingHextile, EncodingUltra,
			EncodingZlib, EncodingZlibHex, EncodingTRLE, EncodingZRLE, EncodingZYWRLE, EncodingTight:
			if !preferredChosen {
				c.mu.Lock()
				c.preferredEncoding = enc
				c.mu.Unlock()
				preferredChosen = true
			}
		case EncodingCopyRect:
			c.mu.Lock()
			c.copyRectEnabled = true
			c.mu.Unlock()
		case PseudoEncodingXCursor:
			c.mu.Lock()
			c.xCursorEnabled = true
			c.mu.Unlock()
		case PseudoEncodingCursor:
			c.mu.Lock()
			c.richCursorEnabled = true
			c.mu.Unlock()
		case PseudoEncodingPointerPos:
			c.mu.Lock()
			c.cursorPosEnabled = true
			c.mu.Unlock()
		case PseudoEncodingLastRect:
			c.mu.Lock()
			c.lastRectEnabled = true
			c.mu.Unlock()
		case PseudoEncodingDesktopSize:
			c.mu.Lock()
			c.newFBSizeEnabled = true
			c.mu.Unlock()
		case PseudoEncodingExtDesktopSize:
			c.mu.Lock()
			c.extDesktopSizeEnabled = true
			c.mu.Unlock()
		case PseudoEncodingKeyboardLedState:
			c.mu.Lock()
			c.keyboardLedEnabled = true
			c.mu.Unlock()
		case PseudoEncodingSupportedMessages:
			c.mu.Lock()
			c.supportedMessagesEnabled = true
			c.mu.Unlock()
		case PseudoEncodingSupportedEncodings:
			c.mu.Lock()
			c.supportedEncodingsEnabled = true
			c.mu.Unlock()
		case PseudoEncodingServerIdentity:
			c.mu.Lock()
			c.serverIdentityEnabled = true
			c.mu.Unlock()
		case PseudoEncodingXvp:
			c.mu.Lock()
			c.xvpEnabled = true
			c.mu.Unlock()
		default:
			if enc >= int32(PseudoEncodingCompressLevel0) && enc <= int32(PseudoEncodingCompressLevel9) {
				c.mu.Lock()
				c.compressionLevel = int(enc - int32(PseudoEncodingCompressLevel0))
				c.mu.Unlock()
				continue
			}
			if enc >= int32(PseudoEncodingQualityLevel0) && enc <= int32(PseudoEncodingQualityLevel9) {
				c.mu.Lock()
				c.qualityLevel = int(enc - int32(PseudoEncodingQualityLevel0))
				c.mu.Unlock()
				continue
			}
			c.offerUnknownEncoding(enc)
		}
	}
}

// offerUnknownEncoding hands an unrecognized encoding number to every
// extension that claims it, invoking Init the first time a client enables
// one of that extension's numbers.
func (c *Client) offerUnknownEncoding(enc int32) {
	claimants := c.screen.extensions.ClaimantsFor(enc)
	for _, ext := range claimants {
		if _, exists := c.extensions[ext.Name]; !exists {
			c.extensions[ext.Name] = &ExtensionPayload{Extension: ext}
			if ext.Init != nil {
				if err := ext.Init(c); err != nil && c.logger != nil {
					c.logger.Warn("extension init failed",
						Field{Key: "extension", Value: ext.Name}, Field{Key: "error", Value: err})
				}
			}
		}
		if ext.EnablePseudoEncoding != nil {
			if err := ext.EnablePseudoEncoding(c, enc); err != nil && c.logger != nil {
				c.logger.Warn("extension failed to enable pseudo-encoding",
					Field{Key: "extension", Value: ext.Name}, Field{Key: "encoding", Value: enc})
			}
		}
	}
}

// handleFramebufferUpdateRequest parses the 10-byte (9 bytes after the
// consumed type byte) request and updates requested/modified/copy per §4.2.
func (c *Client) handleFramebufferUpdateRequest(s *byteStream) (bool, bool, error) {
	raw, ok := s.take(9)
	if !ok {
		return false, false, nil
	}

	incremental := raw[0] != 0
	x := int32(binary.BigEndian.Uint16(raw[1:3]))
	y := int32(binary.BigEndian.Uint16(raw[3:5]))
	w := binary.BigEndian.Uint16(raw[5:7])
	h := binary.BigEndian.Uint16(raw[7:9])

	// Requests arrive in the client's (possibly scaled) view coordinates;
	// region bookkeeping is always kept in screen space.
	x, y, w, h = c.toScreenSpace(x, y, w, h)

	width, height := c.screen.Dimensions()
	r := clampRectToScreen(x, y, w, h, width, height)
	if r.Empty() {
		return true, true, nil
	}
	region := NewRegionFromRect(r)

	c.mu.Lock()
	c.requested = c.requested.Union(region)
	if !incremental {
		c.modified = c.modified.Union(region)
		c.copy = c.copy.Subtract(region)
		if c.extDesktopSizeEnabled {
			c.pendingResize = true
		}
	}
	c.mu.Unlock()

	return true, true, nil
}

// clampRectToScreen clips a client-supplied rectangle to the screen bounds.
func clampRectToScreen(x, y int32, w, h, width, height uint16) Rectangle {
	r := Rectangle{X1: x, Y1: y, X2: x + int32(w), Y2: y + int32(h)}
	if r.X1 < 0 {
		r.X1 = 0
	}
	if r.Y1 < 0 {
		r.Y1 = 0
	}
	if r.X2 > int32(width) {
		r.X2 = int32(width)
	}
	if r.Y2 > int32(height) {
		r.Y2 = int32(height)
	}
	return r
}

// handleKeyEvent parses the 7 remaining bytes (8 total) of KeyEvent.
func (c *Client) handleKeyEvent(s *byteStream) (bool, bool, error) {
	raw, ok := s.take(7)
	if !ok {
		return false, false, nil
	}

	down := raw[0] != 0
	keysym := binary.BigEndian.Uint32(raw[3:7])

	if c.ViewOnly() {
		return true, true, nil
	}

	if c.screen.keyEventFn != nil {
		c.screen.keyEventFn(c, keysym, down)
	}

	return true, true, nil
}

// handlePointerEvent parses the 5 remaining bytes (6 total) of PointerEvent
// and applies scaling, deferral, and exclusive-ownership rules.
func (c *Client) handlePointerEvent(s *byteStream) (bool, bool, error) {
	raw, ok := s.take(5)
	if !ok {
		return false, false, nil
	}

	buttonMask := raw[0]
	x := int32(binary.BigEndian.Uint16(raw[1:3]))
	y := int32(binary.BigEndian.Uint16(raw[3:5]))

	c.mu.Lock()
	scale := c.scale
	c.mu.Unlock()
	if scale != 0 && scale != 1 {
		x = int32(float32(x) / scale)
		y = int32(float32(y) / scale)
	}

	c.mu.Lock()
	maskChanged := buttonMask != c.lastButtonMask
	c.lastButtonMask = buttonMask
	deferred := c.deferPtrUpdateTime > 0
	c.mu.Unlock()

	if buttonMask != 0 {
		c.screen.mu.Lock()
		c.screen.pointerOwner = c
		c.screen.mu.Unlock()
	} else {
		c.screen.mu.Lock()
		if c.screen.pointerOwner == c {
			c.screen.pointerOwner = nil
		}
		c.screen.mu.Unlock()
	}

	if maskChanged || !deferred {
		if c.screen.pointerEventFn != nil {
			c.screen.pointerEventFn(c, x, y, buttonMask)
		}
		c.mu.Lock()
		c.hasLastPointer = false
		c.mu.Unlock()
		return true, true, nil
	}

	c.mu.Lock()
	c.lastPointerX, c.lastPointerY = x, y
	c.hasLastPointer = true
	if c.startPtrDeferring.IsZero() {
		c.startPtrDeferring = currentTime()
	}
	c.mu.Unlock()

	return true, true, nil
}

// handleClientCutText parses the variable-length ClientCutText message:
// 3 pad bytes, 4-byte length, then length bytes of text.
func (c *Client) handleClientCutText(s *byteStream) (bool, bool, error) {
	if _, ok := s.take(3); !ok {
		return false, false, nil
	}
	lenBytes, ok := s.take(4)
	if !ok {
		return false, false, nil
	}
	textLen := binary.BigEndian.Uint32(lenBytes)

	if textLen > MaxCutTextLength {
		return false, true, resourceError("Client.handleClientCutText",
			"clipboard text exceeds maximum length", nil)
	}

	raw, ok := s.take(int(textLen))
	if !ok {
		return false, false, nil
	}

	if c.screen.clipboardEventFn != nil {
		c.screen.clipboardEventFn(c, string(raw))
	}

	return true, true, nil
}

// handleSetScale parses the 3 remaining bytes (4 total) shared by SetScale
// and PalmVNCSetScaleFactor: a one-byte scale followed by 2 pad bytes.
func (c *Client) handleSetScale(s *byteStream) (bool, bool, error) {
	raw, ok := s.take(3)
	if !ok {
		return false, false, nil
	}

	scaleByte := raw[0]
	if scaleByte == 0 {
		return false, true, protocolError("Client.handleSetScale", "scale factor of zero is rejected", nil)
	}

	c.mu.Lock()
	c.scale = float32(scaleByte) / 100.0
	c.mu.Unlock()

	return true, true, nil
}

// handleXvp parses the 3 remaining bytes (4 total) of Xvp: 1 pad byte, a
// version byte, and the sub-message code.
func (c *Client) handleXvp(s *byteStream) (bool, bool, error) {
	raw, ok := s.take(3)
	if !ok {
		return false, false, nil
	}
	code := raw[2]

	accepted := false
	if c.screen.xvpHook != nil {
		accepted = c.screen.xvpHook(c, code)
	}

	result := XvpFail
	if accepted {
		result = XvpInit
	}
	_ = c.sendXvpReply(result)

	return true, true, nil
}

// handleSetDesktopSize parses SetDesktopSize: 1 pad byte, 2-byte width,
// 2-byte height, 1-byte screen count, 1 pad byte, then count 16-byte screen
// layout entries.
func (c *Client) handleSetDesktopSize(s *byteStream) (bool, bool, error) {
	header, ok := s.take(7)
	if !ok {
		return false, false, nil
	}

	width := binary.BigEndian.Uint16(header[1:3])
	height := binary.BigEndian.Uint16(header[3:5])
	numScreens := header[5]

	screens := make([]ScreenLayoutEntry, 0, numScreens)
	for i := uint8(0); i < numScreens; i++ {
		entry, ok := s.take(16)
		if !ok {
			return false, false, nil
		}
		screens = append(screens, ScreenLayoutEntry{
			ID:     binary.BigEndian.Uint32(entry[0:4]),
			X:      binary.BigEndian.Uint16(entry[4:6]),
			Y:      binary.BigEndian.Uint16(entry[6:8]),
			Width:  binary.BigEndian.Uint16(entry[8:10]),
			Height: binary.BigEndian.Uint16(entry[10:12]),
			Flags:  binary.BigEndian.Uint32(entry[12:16]),
		})
	}

	status := uint16(ExtDesktopSizeStatusResizeProhibited)
	if c.screen.setDesktopSizeHook != nil {
		status = c.screen.setDesktopSizeHook(c, width, height, screens)
	}

	c.mu.Lock()
	c.resizeReason = 1 // client-requested, per the ExtDesktopSize reason convention
	c.resizeResult = status
	c.pendingResize = true
	c.mu.Unlock()

	return true, true, nil
}

// handleExtensionMessage offers a message type the core does not itself
// interpret (FileTransfer, TextChat, SetServerInput, SetSW, and any
// vendor-specific type) to every registered extension's HandleMessage hook.
// The core has no stable universal framing for these beyond the type byte,
// so an extension that wants one must consume it directly from the stream.
func (c *Client) handleExtensionMessage(msgType uint8, s *byteStream) (bool, bool, error) {
	mark := s.mark()
	for _, ext := range c.screen.extensions.all() {
		if ext.HandleMessage == nil {
			continue
		}
		s.rewind(mark)
		handled, err := ext.HandleMessage(c, msgType, s)
		if err != nil {
			return false, true, err
		}
		if handled {
			return true, true, nil
		}
	}
	return false, true, nil
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"encoding/binary"
)

// emitCursorShapeRect sends the RichCursor or XCursor pseudo-rect when the
// client's cursor shape changed since the last update and the client has
// enabled one of the two encodings (RichCursor preferred).
func emitCursorShapeRect(c *Client) (bool, error) {
	c.mu.Lock()
	changed := c.cursorWasChanged
	rich := c.richCursorEnabled
	xcursor := c.xCursorEnabled
	width, height := c.cursorWidth, c.cursorHeight
	hotX, hotY := c.cursorHotspotX, c.cursorHotspotY
	colors := c.cursorColors
	mask := c.cursorMaskData
	pixelFormat := c.pixelFormat
	colorMap := c.colorMap
	c.cursorWasChanged = false
	c.mu.Unlock()

	if !changed || (!rich && !xcursor) {
		return false, nil
	}

	if rich {
		return true, emitRichCursor(c, width, height, hotX, hotY, colors, mask, pixelFormat, colorMap)
	}
	return true, emitXCursor(c, width, height, hotX, hotY, colors, mask)
}

func emitRichCursor(c *Client, width, height, hotX, hotY uint16, colors []Color, mask []byte,
	pixelFormat PixelFormat, colorMap [ColorMapSize]Color) error {
	if err := c.sendRectangleHeader(int32(hotX), int32(hotY), width, height, PseudoEncodingCursor); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return nil
	}

	writer := NewPixelWriter(pixelFormat, colorMap)
	var pixmap bytes.Buffer
	for _, col := range colors {
		if err := writer.WritePixelColor(&pixmap, col); err != nil {
			return encodingError("emitRichCursor", "failed to translate cursor pixel", err)
		}
	}

	if err := c.writeOutput(pixmap.Bytes()); err != nil {
		return err
	}
	return c.writeOutput(mask)
}

func emitXCursor(c *Client, width, height, hotX, hotY uint16, colors []Color, mask []byte) error {
	if err := c.sendRectangleHeader(int32(hotX), int32(hotY), width, height, PseudoEncodingXCursor); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return nil
	}

	fore, back := ColorBlack, ColorWhite
	if len(colors) > 0 {
		fore = colors[0]
	}
	if len(colors) > 1 {
		back = colors[len(colors)-1]
	}

	buf := []byte{
		byte(fore.R >> 8), byte(fore.G >> 8), byte(fore.B >> 8),
		byte(back.R >> 8), byte(back.G >> 8), byte(back.B >> 8),
	}
	if err := c.writeOutput(buf); err != nil {
		return err
	}

	bytesPerRow := int((width + 7) / 8)
	bitmap := make([]byte, bytesPerRow*int(height))
	for i, col := range colors {
		if i >= int(width)*int(height) {
			break
		}
		if colorLuma(col) < colorLuma(fore) {
			continue
		}
		row := i / int(width)
		column := i % int(width)
		bitmap[row*bytesPerRow+column/8] |= 1 << (7 - uint(column%8))
	}
	if err := c.writeOutput(bitmap); err != nil {
		return err
	}
	return c.writeOutput(mask)
}

func colorLuma(c Color) uint32 {
	return uint32(c.R) + uint32(c.G) + uint32(c.B)
}

// emitCursorPosRect sends the pointer-position pseudo-rect if the host
// moved the cursor since the last update and the client enabled it.
func emitCursorPosRect(c *Client) (bool, error) {
	c.mu.Lock()
	moved := c.cursorWasMoved
	enabled := c.cursorPosEnabled
	x, y := c.lastCursorX, c.lastCursorY
	c.cursorWasMoved = false
	c.mu.Unlock()

	if !moved || !enabled {
		return false, nil
	}

	return true, c.sendRectangleHeader(x, y, 0, 0, PseudoEncodingPointerPos)
}

// emitKeyboardLedRect polls the host's keyboard LED state and sends it as a
// one-shot pseudo-rect whenever it differs from what this client last saw.
func emitKeyboardLedRect(c *Client, lastState *uint8, haveLast *bool) (bool, error) {
	c.mu.Lock()
	enabled := c.keyboardLedEnabled
	c.mu.Unlock()
	if !enabled || c.screen.keyboardLedStateFn == nil {
		return false, nil
	}

	state := c.screen.keyboardLedStateFn()
	if *haveLast && *lastState == state {
		return false, nil
	}
	*lastState = state
	*haveLast = true

	return true, c.sendRectangleHeader(int32(state), 0, 0, 0, PseudoEncodingKeyboardLedState)
}

// emitOneShotCapabilityRects sends SupportedMessages/SupportedEncodings/
// ServerIdentity once each, the first time a client enables them, then
// disables the corresponding flag so they never repeat.
func emitOneShotCapabilityRects(c *Client) ([]func() error, bool) {
	c.mu.Lock()
	supportedMessages := c.supportedMessagesEnabled
	supportedEncodings := c.supportedEncodingsEnabled
	serverIdentity := c.serverIdentityEnabled
	c.supportedMessagesEnabled = false
	c.supportedEncodingsEnabled = false
	c.serverIdentityEnabled = false
	c.mu.Unlock()

	var senders []func() error
	any := false

	if supportedMessages {
		any = true
		senders = append(senders, func() error { return c.sendSupportedMessagesRect() })
	}
	if supportedEncodings {
		any = true
		senders = append(senders, func() error { return c.sendSupportedEncodingsRect() })
	}
	if serverIdentity {
		any = true
		senders = append(senders, func() error { return c.sendServerIdentityRect() })
	}

	return senders, any
}

// sendSupportedMessagesRect sends a bitmask of which client-to-server and
// server-to-client message types this core recognizes (two 256-bit masks).
func (c *Client) sendSupportedMessagesRect() error {
	if err := c.sendRectangleHeader(0, 0, 64, 1, PseudoEncodingSupportedMessages); err != nil {
		return err
	}
	var clientToServer, serverToClient [32]byte
	for _, t := range []uint8{
		MsgSetPixelFormat, MsgFixColourMapEntries, MsgSetEncodings, MsgFramebufferUpdateRequest,
		MsgKeyEvent, MsgPointerEvent, MsgClientCutText, MsgSetScale, MsgTextChat,
		MsgPalmVNCSetScaleFactor, MsgXvp, MsgSetDesktopSize,
	} {
		clientToServer[t/8] |= 1 << (7 - t%8)
	}
	for _, t := range []uint8{
		MsgFramebufferUpdate, MsgSetColourMapEntries, MsgBell, MsgServerCutText, MsgResizeFrameBuffer,
	} {
		serverToClient[t/8] |= 1 << (7 - t%8)
	}
	if err := c.writeOutput(clientToServer[:]); err != nil {
		return err
	}
	return c.writeOutput(serverToClient[:])
}

// sendSupportedEncodingsRect sends the list of encoding numbers this screen
// can emit, one int32 per update-rect-sized payload entry.
func (c *Client) sendSupportedEncodingsRect() error {
	encodings := c.screen.Encoders().registeredTypes()
	if err := c.sendRectangleHeader(0, 0, 1, uint16(len(encodings)), PseudoEncodingSupportedEncodings); err != nil { // #nosec G115 - encoding count is bounded by registry size
		return err
	}
	buf := make([]byte, len(encodings)*4)
	for i, enc := range encodings {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], uint32(enc)) // #nosec G115 - signed encoding number reinterpreted as bits
	}
	return c.writeOutput(buf)
}

// sendServerIdentityRect sends a human-readable server identity string.
func (c *Client) sendServerIdentityRect() error {
	identity := "asyncrfb"
	if err := c.sendRectangleHeader(0, 0, uint16(len(identity)), 1, PseudoEncodingServerIdentity); err != nil { // #nosec G115 - identity string is a short constant
		return err
	}
	return c.writeOutput([]byte(identity))
}

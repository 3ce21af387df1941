// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"encoding/binary"
)

// sendXvpReply answers a client's Xvp request with the same 4-byte framing
// it arrived in: type, a pad byte, a fixed protocol-version byte, and the
// result code. Sent immediately, outside any pending framebuffer update.
func (c *Client) sendXvpReply(code uint8) error {
	buf := make([]byte, 4)
	buf[0] = MsgXvp
	buf[1] = 0
	buf[2] = 1
	buf[3] = code
	if err := c.writeOutput(buf); err != nil {
		return err
	}
	return c.flushOutput()
}

// sendBell writes the one-byte Bell message, flushed immediately.
func (c *Client) sendBell() error {
	if err := c.writeOutput([]byte{MsgBell}); err != nil {
		return err
	}
	return c.flushOutput()
}

// sendServerCutText writes a ServerCutText message: type, 3 pad bytes,
// 4-byte length, then the text itself. Flushed immediately.
func (c *Client) sendServerCutText(text string) error {
	var buf bytes.Buffer
	buf.WriteByte(MsgServerCutText)
	buf.Write([]byte{0, 0, 0})
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(text))); err != nil {
		return encodingError("Client.sendServerCutText", "failed to write text length", err)
	}
	buf.WriteString(text)
	if err := c.writeOutput(buf.Bytes()); err != nil {
		return err
	}
	return c.flushOutput()
}

// sendFramebufferUpdateHeader writes the 4-byte FramebufferUpdate message
// header: type, a pad byte, and the rectangle count that follows. Routed
// through the scratch buffer so it stays ordered with the rects that follow.
func (c *Client) sendFramebufferUpdateHeader(numRects uint16) error {
	buf := make([]byte, 4)
	buf[0] = MsgFramebufferUpdate
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], numRects)
	return c.writeOutput(buf)
}

// sendRectangleHeader writes a 12-byte rectangle header: x, y, width,
// height, then the signed encoding type.
func (c *Client) sendRectangleHeader(x, y int32, w, h uint16, encoding int32) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], uint16(x))
	binary.BigEndian.PutUint16(buf[2:4], uint16(y))
	binary.BigEndian.PutUint16(buf[4:6], w)
	binary.BigEndian.PutUint16(buf[6:8], h)
	binary.BigEndian.PutUint32(buf[8:12], uint32(encoding)) // #nosec G115 - wire format is a signed int32 reinterpreted as bits
	return c.writeOutput(buf)
}

// sendSetColourMapEntries writes a SetColourMapEntries message for entries
// [firstColour, firstColour+len(colors)) of the client's color map, each as
// three big-endian uint16 channel values. Flushed immediately, as it is not
// part of the rectangle stream.
func (c *Client) sendSetColourMapEntries(firstColour uint16, colors []Color) error {
	var buf bytes.Buffer
	buf.WriteByte(MsgSetColourMapEntries)
	buf.WriteByte(0)
	if err := binary.Write(&buf, binary.BigEndian, firstColour); err != nil {
		return encodingError("Client.sendSetColourMapEntries", "failed to write first colour", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(colors))); err != nil {
		return encodingError("Client.sendSetColourMapEntries", "failed to write colour count", err)
	}
	for _, col := range colors {
		if err := binary.Write(&buf, binary.BigEndian, col.R); err != nil {
			return encodingError("Client.sendSetColourMapEntries", "failed to write red channel", err)
		}
		if err := binary.Write(&buf, binary.BigEndian, col.G); err != nil {
			return encodingError("Client.sendSetColourMapEntries", "failed to write green channel", err)
		}
		if err := binary.Write(&buf, binary.BigEndian, col.B); err != nil {
			return encodingError("Client.sendSetColourMapEntries", "failed to write blue channel", err)
		}
	}
	if err := c.writeOutput(buf.Bytes()); err != nil {
		return err
	}
	return c.flushOutput()
}

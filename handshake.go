// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"context"
	"encoding/binary"
	"fmt"
)

// handleProtocolVersion completes the ProtocolVersion stage: it parses the
// client's 12-byte reply and adopts a minor version per §4.2. Neither
// NewClient nor this handler sends the server's own 12-byte version string.
func (c *Client) handleProtocolVersion(s *byteStream) (bool, error) {
	raw, ok := s.take(12)
	if !ok {
		return false, nil
	}

	version := string(raw)
	validator := newInputValidator()
	if err := validator.ValidateProtocolVersion(version); err != nil {
		return true, protocolError("Client.handleProtocolVersion", "malformed protocol version reply", err)
	}

	var major, minor uint8
	if _, err := fmt.Sscanf(version, "RFB %d.%d\n", &major, &minor); err != nil {
		return true, protocolError("Client.handleProtocolVersion", "unparseable protocol version reply", err)
	}

	c.majorVersion = 3
	switch {
	case minor > 2 && minor < 9:
		c.minorVersion = minor
	default:
		c.minorVersion = c.screen.minorVersion
	}

	if c.logger != nil {
		c.logger.Debug("negotiated protocol version",
			Field{Key: "major", Value: c.majorVersion}, Field{Key: "minor", Value: c.minorVersion})
	}

	if c.minorVersion < 7 {
		// RFB 3.3: the server unilaterally picks a single security type and
		// sends it as a 4-byte value; there is no client reply to parse.
		chosenType := c.screen.auth.pickLegacyType()
		if err := c.beginAuthentication(chosenType); err != nil {
			return true, err
		}
		if err := c.sendLegacySecurityType(chosenType); err != nil {
			return true, err
		}
		return true, nil
	}

	if err := c.sendSecurityTypeList(); err != nil {
		return true, err
	}
	c.setState(StateSecurityType)
	return true, nil
}

// handleSecurityType parses the client's one-byte chosen security type
// (RFB 3.7+ only; 3.3 clients never reach this state).
func (c *Client) handleSecurityType(s *byteStream) (bool, error) {
	chosen, ok := s.takeByte()
	if !ok {
		return false, nil
	}

	if err := c.beginAuthentication(chosen); err != nil {
		return true, err
	}
	return true, nil
}

// beginAuthentication selects and starts the handshake for the chosen
// security type, closing the client if it was never offered.
func (c *Client) beginAuthentication(securityType uint8) error {
	auth, err := c.screen.auth.SelectAuth(context.Background(), securityType)
	if err != nil {
		_ = c.sendSecurityResult(SecResultFailed, "unsupported security type")
		return authenticationError("Client.beginAuthentication", "security type rejected", err)
	}

	c.auth = auth
	c.setState(StateAuthentication)
	return nil
}

// handleAuthentication drives the chosen ServerAuth's handshake to
// completion. VNCPasswordAuth performs its own challenge/response exchange
// directly against the connection-shaped byteStream adapter; NoneAuth is a
// no-op. The stream-backed reader/writer means the whole handshake must fit
// in one Ingest call's bytes for the writer side (challenge) to be staged
// through the screen's push callback, and the response read comes from this
// same chunk or a subsequent one.
func (c *Client) handleAuthentication(ctx context.Context, s *byteStream) (bool, error) {
	rw := &clientStreamRW{client: c, stream: s}

	err := c.auth.Authenticate(ctx, rw)
	if rw.insufficientRead {
		return false, nil
	}
	if err != nil {
		_ = c.sendSecurityResult(SecResultFailed, err.Error())
		return true, authenticationError("Client.handleAuthentication", "authentication failed", err)
	}

	if err := c.sendSecurityResult(SecResultOK, ""); err != nil {
		return true, err
	}

	if c.screen.alwaysShared {
		c.setState(StateInitialisationShared)
	} else {
		c.setState(StateInitialisation)
	}
	return true, nil
}

// handleClientInit parses the one-byte shared flag and decides whether this
// client may join given other connected clients and the screen's sharing
// policy, per §4.2. Only reached when the screen isn't configured with
// AlwaysShared; handleAuthentication routes those clients straight to
// StateInitialisationShared instead, so a false shared flag always means an
// exclusive-access request here.
func (c *Client) handleClientInit(s *byteStream) (bool, error) {
	sharedByte, ok := s.takeByte()
	if !ok {
		return false, nil
	}

	shared := sharedByte != 0
	if !shared {
		if c.screen.neverShared || c.screen.dontDisconnect {
			return true, protocolError("Client.handleClientInit", "exclusive access requested but not permitted", nil)
		}
		c.screen.disconnectAllExcept(c)
	}

	return c.finishInitialisation()
}

// handleClientInitShared behaves as handleClientInit with shared=true
// implied; no byte is consumed. handleAuthentication transitions a client
// straight here, instead of to StateInitialisation, whenever the screen was
// configured with AlwaysShared: such a client never sends (and this core
// never reads) the one-byte shared flag at all.
func (c *Client) handleClientInitShared(s *byteStream) (bool, error) {
	return c.finishInitialisation()
}

// finishInitialisation emits ServerInit and transitions to the Normal
// message loop.
func (c *Client) finishInitialisation() (bool, error) {
	if err := c.sendServerInit(); err != nil {
		return true, err
	}
	c.setState(StateNormal)
	return true, nil
}

// sendLegacySecurityType sends the 4-byte security type used by RFB 3.3.
func (c *Client) sendLegacySecurityType(securityType uint8) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(securityType))
	return c.screen.pushBytes(c, buf)
}

// sendSecurityTypeList sends the RFB 3.7+ `[count, type1, ...]` list.
func (c *Client) sendSecurityTypeList() error {
	types := c.screen.auth.OfferedTypes()
	if len(types) == 0 || len(types) > 255 {
		return configurationError("Client.sendSecurityTypeList", "screen offers no usable security types", nil)
	}

	buf := make([]byte, 1+len(types))
	buf[0] = uint8(len(types)) // #nosec G115 - bounded above by 255
	copy(buf[1:], types)
	return c.screen.pushBytes(c, buf)
}

// sendSecurityResult writes the 4-byte SecurityResult and, on failure under
// RFB 3.8+, the reason string that precedes the connection close.
func (c *Client) sendSecurityResult(result uint32, reason string) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, result)
	if err := c.screen.pushBytes(c, buf); err != nil {
		return err
	}

	if result == SecResultFailed && c.minorVersion >= 8 {
		reasonBytes := []byte(reason)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(reasonBytes))) // #nosec G115 - reason strings are short
		if err := c.screen.pushBytes(c, lenBuf); err != nil {
			return err
		}
		if err := c.screen.pushBytes(c, reasonBytes); err != nil {
			return err
		}
	}

	return nil
}

// sendServerInit writes width, height, the server pixel format, and the
// desktop name.
func (c *Client) sendServerInit() error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], c.screen.width)
	binary.BigEndian.PutUint16(header[2:4], c.screen.height)
	if err := c.screen.pushBytes(c, header); err != nil {
		return err
	}

	pfBytes, err := writePixelFormat(&c.pixelFormat)
	if err != nil {
		return protocolError("Client.sendServerInit", "failed to encode pixel format", err)
	}
	if err := c.screen.pushBytes(c, pfBytes); err != nil {
		return err
	}

	nameBytes := []byte(c.screen.desktopName)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(nameBytes))) // #nosec G115 - desktop names are short
	if err := c.screen.pushBytes(c, lenBuf); err != nil {
		return err
	}
	return c.screen.pushBytes(c, nameBytes)
}

// clientStreamRW adapts the borrowed byteStream and the screen's push
// callback into an io.ReadWriter so ServerAuth implementations can use
// ordinary binary.Read/Write against it, the same shape the teacher's
// ClientAuth implementations were written against over a net.Conn.
type clientStreamRW struct {
	client           *Client
	stream           *byteStream
	insufficientRead bool
}

func (rw *clientStreamRW) Read(p []byte) (int, error) {
	b, ok := rw.stream.take(len(p))
	if !ok {
		rw.insufficientRead = true
		return 0, errShortStream
	}
	copy(p, b)
	return len(b), nil
}

func (rw *clientStreamRW) Write(p []byte) (int, error) {
	if err := rw.client.screen.pushBytes(rw.client, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// errShortStream signals a Read that could not be satisfied by the current
// chunk; handleAuthentication treats it as "insufficient", not a protocol
// error.
var errShortStream = fmt.Errorf("rfb: insufficient bytes buffered for read")

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

// Protocol version strings exchanged during the ProtocolVersion handshake stage.
const (
	ProtocolVersion33 = "RFB 003.003\n"
	ProtocolVersion37 = "RFB 003.007\n"
	ProtocolVersion38 = "RFB 003.008\n"
)

// Security types, sent by the server in the SecurityType handshake stage.
const (
	SecTypeInvalid = uint8(0)
	SecTypeNone    = uint8(1)
	SecTypeVncAuth = uint8(2)
)

// Security result codes returned after authentication.
const (
	SecResultOK     = uint32(0)
	SecResultFailed = uint32(1)
)

// Client-to-server message types.
const (
	MsgSetPixelFormat           = uint8(0)
	MsgFixColourMapEntries      = uint8(1)
	MsgSetEncodings             = uint8(2)
	MsgFramebufferUpdateRequest = uint8(3)
	MsgKeyEvent                 = uint8(4)
	MsgPointerEvent             = uint8(5)
	MsgClientCutText            = uint8(6)
	MsgSetScale                 = uint8(8)
	MsgTextChat                 = uint8(11)
	MsgPalmVNCSetScaleFactor    = uint8(0xF)
	MsgXvp                      = uint8(250)
	MsgSetDesktopSize           = uint8(251)
)

// Server-to-client message types.
const (
	MsgFramebufferUpdate   = uint8(0)
	MsgSetColourMapEntries = uint8(1)
	MsgBell                = uint8(2)
	MsgServerCutText       = uint8(3)
	MsgResizeFrameBuffer   = uint8(4)
	MsgPalmVNCReSizeFrameBuffer = uint8(0xF)
)

// Xvp sub-message codes, carried inside a MsgXvp frame (bidirectional).
const (
	XvpFail     = uint8(0)
	XvpInit     = uint8(1)
	XvpShutdown = uint8(2)
	XvpReboot   = uint8(3)
	XvpReset    = uint8(4)
)

// Encoding types, negotiated via SetEncodings and used to tag FramebufferUpdate rectangles.
const (
	EncodingRaw      = int32(0)
	EncodingCopyRect = int32(1)
	EncodingRRE      = int32(2)
	EncodingCoRRE    = int32(4)
	EncodingHextile  = int32(5)
	EncodingZlib     = int32(6)
	EncodingTight    = int32(7)
	EncodingZlibHex  = int32(8)
	EncodingUltra    = int32(9)
	EncodingTRLE     = int32(15)
	EncodingZRLE     = int32(16)
	EncodingZYWRLE   = int32(17)
)

// Pseudo-encodings, negotiated the same way as real encodings but never tag an
// actual rectangle of pixel data; they signal capability or carry side-channel state.
const (
	PseudoEncodingCursor            = int32(-239) // rfbEncodingRichCursor (0xFFFFFF11)
	PseudoEncodingXCursor           = int32(-240) // rfbEncodingXCursor (0xFFFFFF10)
	PseudoEncodingPointerPos        = int32(-232) // rfbEncodingPointerPos (0xFFFFFF18)
	PseudoEncodingLastRect          = int32(-224) // rfbEncodingLastRect (0xFFFFFF20)
	PseudoEncodingDesktopSize       = int32(-223) // rfbEncodingNewFBSize (0xFFFFFF21)
	PseudoEncodingExtDesktopSize    = int32(-308) // rfbEncodingExtDesktopSize (0xFFFFFECC)
	PseudoEncodingXvp               = int32(-309) // rfbEncodingXvp (0xFFFFFECB)
	PseudoEncodingKeyboardLedState  = int32(-65536)
	PseudoEncodingSupportedMessages = int32(-65535)
	PseudoEncodingSupportedEncodings = int32(-65534)
	PseudoEncodingServerIdentity    = int32(-65533)
)

// Compression and JPEG-quality hint pseudo-encodings (Tight/Ultra/ZRLE
// family): the client offers one of each range to suggest an effort level,
// rather than claiming support for a distinct encoding.
const (
	PseudoEncodingCompressLevel0 = int32(-256)
	PseudoEncodingCompressLevel9 = int32(-247)
	PseudoEncodingQualityLevel0  = int32(-32)
	PseudoEncodingQualityLevel9  = int32(-23)
)

// ExtDesktopSize status codes, returned in the x-field of the single
// ExtDesktopSize reply rectangle.
const (
	ExtDesktopSizeStatusOK             = uint16(0)
	ExtDesktopSizeStatusResizeProhibited = uint16(1)
	ExtDesktopSizeStatusOutOfResources  = uint16(2)
	ExtDesktopSizeStatusInvalidScreenLayout = uint16(3)
)

// Pointer button mask bits carried in a PointerEvent message.
const (
	Button1Mask = uint8(1)
	Button2Mask = uint8(2)
	Button3Mask = uint8(4)
	Button4Mask = uint8(8)
	Button5Mask = uint8(16)
)

// ColorMapSize is the number of entries in an indexed-color ColorMap (one per
// possible 8-bit pixel value).
const ColorMapSize = 256

// MaxRectanglesPerUpdate bounds how many rectangles a single FramebufferUpdate
// may carry before the scheduler collapses its draw rectangles into one
// bounding-box Raw rectangle.
const MaxRectanglesPerUpdate = 4096

// MaxCutTextLength bounds the length of a ClientCutText payload this server
// core will accept in one message. ServerCutText payloads are not checked
// against it.
const MaxCutTextLength = 1 << 20

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRREEncodeSolidRectangle(t *testing.T) {
	_, c, out := testClient(t, 8, 8)

	enc := &RREEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 8, 8))
	require.NoError(t, c.flushOutput())

	// header(12) + subrect-count(4) + background pixel(4) + zero subrects.
	require.Equal(t, 12+4+4, out.Len())
}

func TestRREEncodeWithForegroundRun(t *testing.T) {
	_, c, out := testClient(t, 4, 4)

	fb, stride := c.screen.Framebuffer()
	// Paint one row a different color from the rest of the rectangle.
	for col := 0; col < 4; col++ {
		off := 1*stride + col*4
		fb[off] = 0xFF
		fb[off+1] = 0x00
		fb[off+2] = 0x00
	}

	enc := &RREEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 4, 4))
	require.NoError(t, c.flushOutput())

	// header(12) + subrect-count(4) + background(4) + one subrect: color(4) + geom(8).
	require.Equal(t, 12+4+4+4+8, out.Len())
}

func TestRREEncodeZeroSizeRect(t *testing.T) {
	_, c, out := testClient(t, 4, 4)

	enc := &RREEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 0, 0))
	require.NoError(t, c.flushOutput())
	require.Equal(t, 12+4, out.Len())
}


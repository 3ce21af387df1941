// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHextileEncodeSingleTile(t *testing.T) {
	_, c, out := testClient(t, 16, 16)

	enc := &HextileEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 16, 16))
	require.NoError(t, c.flushOutput())

	// header(12) + subencoding byte(1) + raw tile pixels (16*16*4).
	require.Equal(t, 12+1+16*16*4, out.Len())
}

func TestHextileEncodeMultipleTiles(t *testing.T) {
	_, c, out := testClient(t, 20, 18)

	enc := &HextileEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 20, 18))
	require.NoError(t, c.flushOutput())

	// 2 tile columns (16, 4) x 2 tile rows (16, 2) = 4 tiles.
	tilePayload := func(w, h int) int { return 1 + w*h*4 }
	expected := 12 +
		tilePayload(16, 16) + tilePayload(4, 16) +
		tilePayload(16, 2) + tilePayload(4, 2)
	require.Equal(t, expected, out.Len())
}

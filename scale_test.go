// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToScreenSpaceIdentityAtScaleOne(t *testing.T) {
	_, c, _ := testClient(t, 32, 32)

	x, y, w, h := c.toScreenSpace(4, 8, 10, 12)
	require.Equal(t, int32(4), x)
	require.Equal(t, int32(8), y)
	require.Equal(t, uint16(10), w)
	require.Equal(t, uint16(12), h)
}

func TestToScreenSpaceAndBackAtHalfScale(t *testing.T) {
	_, c, _ := testClient(t, 32, 32)
	c.mu.Lock()
	c.scale = 0.5
	c.mu.Unlock()

	// A client-space request for (20, 20) at half scale maps to (40, 40)
	// in screen space.
	x, y, w, h := c.toScreenSpace(20, 20, 20, 20)
	require.Equal(t, int32(40), x)
	require.Equal(t, int32(40), y)
	require.Equal(t, uint16(40), w)
	require.Equal(t, uint16(40), h)

	scaledW, scaledH := c.toClientSpace(w, h)
	require.Equal(t, uint16(20), scaledW)
	require.Equal(t, uint16(20), scaledH)
}

func TestScaledRawEncoderProducesResizedRect(t *testing.T) {
	_, c, out := testClient(t, 32, 32)
	c.mu.Lock()
	c.scale = 0.5
	c.mu.Unlock()

	enc := &ScaledRawEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 32, 32))
	require.NoError(t, c.flushOutput())

	// header(12) + 16x16 resampled raw pixels at 4 bytes/pixel.
	require.Equal(t, 12+16*16*4, out.Len())
}

func TestScaledRawEncoderZeroSizeSourceRect(t *testing.T) {
	_, c, out := testClient(t, 32, 32)
	c.mu.Lock()
	c.scale = 0.5
	c.mu.Unlock()

	enc := &ScaledRawEncoder{}
	require.NoError(t, enc.Encode(c, 0, 0, 0, 0))
	require.NoError(t, c.flushOutput())
	require.Equal(t, 12, out.Len())
}

func TestEncoderRegistryForClientSelectsScaledRaw(t *testing.T) {
	_, c, _ := testClient(t, 32, 32)
	c.mu.Lock()
	c.scale = 0.75
	c.mu.Unlock()

	enc := c.screen.Encoders().ForClient(c)
	_, ok := enc.(*ScaledRawEncoder)
	require.True(t, ok, "a client with scale != 1 must be served ScaledRawEncoder regardless of its preferred encoding")
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClient builds a Screen + Client pair in StateNormal with the whole
// framebuffer already requested, and a push callback that appends every
// flushed byte slice to a single shared buffer.
func testClient(t *testing.T, width, height uint16) (*Screen, *Client, *bytes.Buffer) {
	t.Helper()

	fb := make([]byte, int(width)*int(height)*4)
	var mu sync.Mutex
	out := &bytes.Buffer{}

	screen, err := NewScreen(ScreenConfig{
		Framebuffer: fb,
		Width:       width,
		Height:      height,
		Stride:      int(width) * 4,
		PixelFormat: PixelFormat{
			BPP: 32, Depth: 24, TrueColor: true,
			RedMax: 255, GreenMax: 255, BlueMax: 255,
			RedShift: 16, GreenShift: 8, BlueShift: 0,
		},
	})
	require.NoError(t, err)

	screen.SetCallbacks(func(c *Client, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		out.Write(data)
		return nil
	}, nil, nil)

	c := NewClient(screen, "test-handle")
	c.mu.Lock()
	c.state = StateNormal
	c.requested = NewRegionFromRect(rect(0, 0, int32(width), int32(height)))
	c.mu.Unlock()

	return screen, c, out
}

func TestProcessUpdateSendsModifiedRect(t *testing.T) {
	_, c, out := testClient(t, 16, 16)

	c.mu.Lock()
	c.modified = NewRegionFromRect(rect(0, 0, 16, 16))
	c.mu.Unlock()

	require.NoError(t, c.Process())
	require.Greater(t, out.Len(), 0, "expected a FramebufferUpdate to be flushed")

	c.mu.Lock()
	defer c.mu.Unlock()
	require.True(t, c.modified.IsEmpty(), "modified region must be cleared after a successful update")
}

func TestProcessUpdateNoopWhenNothingPending(t *testing.T) {
	_, c, out := testClient(t, 16, 16)

	require.NoError(t, c.Process())
	require.Equal(t, 0, out.Len(), "no bytes should be sent when nothing is modified, copied, or pseudo-pending")
}

func TestProcessUpdateRespectsDeferralWindow(t *testing.T) {
	_, c, out := testClient(t, 16, 16)

	c.mu.Lock()
	c.modified = NewRegionFromRect(rect(0, 0, 16, 16))
	c.deferUpdateTime = time.Hour
	c.startDeferring = time.Now()
	c.mu.Unlock()

	require.NoError(t, c.Process())
	require.Equal(t, 0, out.Len(), "update must be withheld until the deferral window elapses")
}

func TestProcessUpdateCollapsesWhenOverBudget(t *testing.T) {
	_, c, out := testClient(t, 256, 256)

	reg := NewEmptyRegion()
	for y := int32(0); y < 256; y += 2 {
		reg = reg.Union(NewRegionFromRect(rect(0, y, 256, y+1)))
	}

	c.mu.Lock()
	c.modified = reg
	c.screen.maxRectsPerUpdate = 4
	c.mu.Unlock()

	require.NoError(t, c.Process())
	require.Greater(t, out.Len(), 0)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.True(t, c.modified.IsEmpty())
}

// TestProcessUpdateFullyEmptiesCopyAndRequested exercises the post-emit
// reset invariant in the case the default testClient fixture above never
// hits: a client whose requested/copy regions are broader than what is
// actually modified this cycle. requested covers the whole screen, but only
// a strip of it changed; copy moves a different strip that does not overlap
// the modified region.
func TestProcessUpdateFullyEmptiesCopyAndRequested(t *testing.T) {
	_, c, out := testClient(t, 32, 32)

	c.mu.Lock()
	c.requested = NewRegionFromRect(rect(0, 0, 32, 32))
	c.modified = NewRegionFromRect(rect(0, 0, 32, 8))
	c.copy = NewRegionFromRect(rect(0, 16, 32, 24))
	c.copyDX, c.copyDY = 4, 0
	c.mu.Unlock()

	require.NoError(t, c.Process())
	require.Greater(t, out.Len(), 0)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.True(t, c.copy.IsEmpty(), "copy must be fully emptied after an update, not just its requested-overlapping part")
	require.True(t, c.requested.IsEmpty(), "requested must be fully emptied after an update, not just its effective-overlapping part")
	require.Equal(t, int32(0), c.copyDX)
	require.Equal(t, int32(0), c.copyDY)
	// The copy strip (rows 16-24) lies inside requested, so it is part of
	// effective and goes out as CopyRect; the reset folds whatever of
	// modified ∪ copy lies outside effective back into modified, and here
	// nothing does.
	require.True(t, c.modified.IsEmpty())
}

func TestProcessSkipsClosedClient(t *testing.T) {
	_, c, out := testClient(t, 16, 16)
	c.mu.Lock()
	c.modified = NewRegionFromRect(rect(0, 0, 16, 16))
	c.mu.Unlock()

	c.Close("test teardown")

	require.NoError(t, c.Process())
	require.Equal(t, 0, out.Len())
}

func TestFlushDeferredPointerFiresAfterWindow(t *testing.T) {
	_, c, _ := testClient(t, 16, 16)

	var gotX, gotY int32
	var gotMask uint8
	var calls int
	c.screen.mu.Lock()
	c.screen.pointerEventFn = func(_ *Client, x, y int32, mask uint8) {
		gotX, gotY, gotMask = x, y, mask
		calls++
	}
	c.screen.mu.Unlock()

	c.mu.Lock()
	c.hasLastPointer = true
	c.lastPointerX, c.lastPointerY = 3, 4
	c.lastButtonMask = 0x1
	c.deferPtrUpdateTime = time.Millisecond
	c.startPtrDeferring = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	require.NoError(t, c.Process())
	require.Equal(t, 1, calls)
	require.Equal(t, int32(3), gotX)
	require.Equal(t, int32(4), gotY)
	require.Equal(t, uint8(0x1), gotMask)
}

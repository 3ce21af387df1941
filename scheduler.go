// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"encoding/binary"
	"time"
)

// Process runs one update cycle for a client: it folds pending region
// bookkeeping into a FramebufferUpdate (plus any pseudo-rects the client has
// negotiated) and pushes it through the screen's transport callback. Hosts
// call this on a periodic tick (via Screen.UpdateClients/ProcessEvents) or
// whenever MarkRectModified/ScheduleCopyRect leaves fresh work queued.
func (c *Client) Process() error {
	if c.IsClosed() {
		return nil
	}

	if c.screen.displayHook != nil {
		c.screen.displayHook(c)
	}

	c.flushDeferredPointer()

	c.mu.Lock()
	normal := c.state == StateNormal
	c.mu.Unlock()
	if !normal {
		return nil
	}

	if !c.deferralWindowElapsed() {
		return nil
	}

	err := c.processUpdate()

	if c.screen.displayFinishedHook != nil {
		c.screen.displayFinishedHook(c, err)
	}
	return err
}

// flushDeferredPointer applies a pointer event that was held back waiting for
// DeferPtrUpdateTime to pass, per §5's pointer-event coalescing rule.
func (c *Client) flushDeferredPointer() {
	c.mu.Lock()
	if !c.hasLastPointer || c.startPtrDeferring.IsZero() {
		c.mu.Unlock()
		return
	}
	if currentTime().Sub(c.startPtrDeferring) < c.deferPtrUpdateTime {
		c.mu.Unlock()
		return
	}
	x, y := c.lastPointerX, c.lastPointerY
	mask := c.lastButtonMask
	c.hasLastPointer = false
	c.startPtrDeferring = time.Time{}
	c.mu.Unlock()

	if c.screen.pointerEventFn != nil {
		c.screen.pointerEventFn(c, x, y, mask)
	}
}

// deferralWindowElapsed reports whether DeferUpdateTime has passed since the
// first modification was recorded, batching bursts of MarkRectModified calls
// into a single update instead of one per call.
func (c *Client) deferralWindowElapsed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startDeferring.IsZero() {
		return true
	}
	return currentTime().Sub(c.startDeferring) >= c.deferUpdateTime
}

// processUpdate implements the per-update assembly algorithm: normalize
// pending regions, slice progressively if configured, partition into
// copy/draw parts, bound the rectangle count, and emit everything in the
// order real RFB clients expect (pseudo-rects first, then copies, then
// draws).
func (c *Client) processUpdate() error {
	c.mu.Lock()
	c.normalizeBeforeEmit()

	effective := c.modified.Union(c.copy).Intersect(c.requested)
	c.consumeCursorDrift()
	c.mu.Unlock()

	resizeSend := c.resizeRectSender()
	cursorShapeSend, hasCursorShape := c.cursorShapeSender()
	cursorPosSend, hasCursorPos := c.cursorPosSender()
	ledSend, hasLed := c.keyboardLedSender()
	capabilitySends, hasCapability := emitOneShotCapabilityRects(c)

	pseudoSenders := make([]func() error, 0, 4+len(capabilitySends))
	if resizeSend != nil {
		pseudoSenders = append(pseudoSenders, resizeSend)
	}
	if hasCursorShape {
		pseudoSenders = append(pseudoSenders, cursorShapeSend)
	}
	if hasCursorPos {
		pseudoSenders = append(pseudoSenders, cursorPosSend)
	}
	if hasLed {
		pseudoSenders = append(pseudoSenders, ledSend)
	}
	if hasCapability {
		pseudoSenders = append(pseudoSenders, capabilitySends...)
	}

	if effective.IsEmpty() && len(pseudoSenders) == 0 {
		return nil
	}

	effective = c.applyProgressiveSlice(effective)

	c.mu.Lock()
	copyPart := c.copy.Intersect(effective)
	drawPart := effective.Subtract(copyPart)
	dx, dy := c.copyDX, c.copyDY
	lastRectEnabled := c.lastRectEnabled
	maxRects := c.screen.maxRectsPerUpdate
	c.mu.Unlock()

	drawRects := drawPart.Rects()
	plan := c.planDrawRects(drawRects, lastRectEnabled)

	total := len(pseudoSenders) + copyPart.RectCount() + plan.total
	if !plan.unknownCount && total > maxRects && len(drawRects) > 0 {
		plan = c.collapseDrawPlan(drawPart)
		total = len(pseudoSenders) + copyPart.RectCount() + plan.total
	}

	headerCount := uint16(total) // #nosec G115 - bounded by maxRectsPerUpdate / sentinel below
	if plan.unknownCount {
		headerCount = 0xFFFF
	}

	if err := c.sendFramebufferUpdateHeader(headerCount); err != nil {
		return err
	}

	for _, send := range pseudoSenders {
		if err := send(); err != nil {
			return err
		}
	}

	if !copyPart.IsEmpty() {
		if err := emitCopyRects(c, copyPart, dx, dy); err != nil {
			return err
		}
	}

	for _, step := range plan.steps {
		if err := step(); err != nil {
			return err
		}
	}

	if plan.unknownCount {
		if err := c.sendRectangleHeader(0, 0, 0, 0, PseudoEncodingLastRect); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.modified = c.modified.Union(c.copy).Subtract(effective)
	c.copy = NewEmptyRegion()
	c.copyDX, c.copyDY = 0, 0
	c.requested = NewEmptyRegion()
	c.startDeferring = time.Time{}
	c.mu.Unlock()

	c.stats.recordUpdate()

	return c.flushOutput()
}

// consumeCursorDrift resets cursorWasMoved when cursor-shape updates are
// disabled; in that mode the host is expected to render the pointer directly
// into the framebuffer and invalidate it via MarkRectModified like any other
// pixels, so Process has nothing further to do with the flag. Callers hold
// c.mu.
func (c *Client) consumeCursorDrift() {
	if !c.richCursorEnabled && !c.xCursorEnabled {
		c.cursorWasMoved = false
	}
}

// applyProgressiveSlice clips the effective region to a single horizontal
// band when the client has configured progressive rendering, advancing the
// slice cursor so the next Process call resumes where this one left off.
func (c *Client) applyProgressiveSlice(effective *Region) *Region {
	c.mu.Lock()
	sliceHeight := c.progressiveSliceHeight
	width, height := c.screen.Dimensions()
	c.mu.Unlock()

	if sliceHeight <= 0 {
		return effective
	}

	bbox, ok := effective.BoundingBox()
	if !ok {
		return effective
	}

	c.mu.Lock()
	y := c.progressiveSliceY
	if y < bbox.Y1 || y >= bbox.Y2 {
		y = bbox.Y1
	}
	sliceEnd := y + sliceHeight
	if sliceEnd >= int32(height) || sliceEnd >= bbox.Y2 {
		c.progressiveSliceY = bbox.Y1
	} else {
		c.progressiveSliceY = sliceEnd
	}
	c.mu.Unlock()

	band := Rectangle{X1: 0, Y1: y, X2: int32(width), Y2: min32(y+sliceHeight, bbox.Y2)}
	return effective.Intersect(NewRegionFromRect(band))
}

type drawPlan struct {
	steps        []func() error
	total        int
	unknownCount bool
}

// planDrawRects assigns each draw rectangle to its client's preferred
// encoder, falling back to Raw for any rectangle whose split count the
// encoder can't predict when the client hasn't enabled LastRect (which is
// the only way such a client could detect where the update ends).
func (c *Client) planDrawRects(rects []Rectangle, lastRectEnabled bool) drawPlan {
	plan := drawPlan{steps: make([]func() error, 0, len(rects))}

	for _, r := range rects {
		r := r
		enc := c.screen.encoders.ForClient(c)
		count, known := enc.RectCount(r.Width(), r.Height())
		if !known && !lastRectEnabled {
			enc, _ = c.screen.encoders.Get(EncodingRaw)
			count, known = enc.RectCount(r.Width(), r.Height())
		}
		if !known {
			plan.unknownCount = true
		} else {
			plan.total += count
		}

		plan.steps = append(plan.steps, func() error {
			err := enc.Encode(c, r.X1, r.Y1, r.Width(), r.Height())
			if err == nil {
				c.stats.recordRect(enc.EncodingType())
			}
			return err
		})
	}

	return plan
}

// collapseDrawPlan re-encodes the whole draw region as a single bounding-box
// Raw rectangle when the per-rectangle plan would exceed the screen's
// maxRectsPerUpdate budget; this costs bandwidth but keeps the rect count
// within what the client was promised.
func (c *Client) collapseDrawPlan(drawPart *Region) drawPlan {
	bbox, ok := drawPart.BoundingBox()
	if !ok {
		return drawPlan{}
	}
	c.mu.Lock()
	scale := c.scale
	c.mu.Unlock()
	raw, _ := c.screen.encoders.Get(EncodingRaw)
	enc := raw
	if scale != 0 && scale != 1 {
		enc = &ScaledRawEncoder{}
	}
	return drawPlan{
		total: 1,
		steps: []func() error{
			func() error {
				err := enc.Encode(c, bbox.X1, bbox.Y1, bbox.Width(), bbox.Height())
				if err == nil {
					c.stats.recordRect(enc.EncodingType())
				}
				return err
			},
		},
	}
}

// resizeRectSender returns the NewFBSize or ExtDesktopSize pseudo-rect
// sender for a pending resize, or nil if none is queued.
func (c *Client) resizeRectSender() func() error {
	c.mu.Lock()
	pending := c.pendingResize
	extEnabled := c.extDesktopSizeEnabled
	newFBEnabled := c.newFBSizeEnabled
	reason := c.resizeReason
	result := c.resizeResult
	c.pendingResize = false
	c.mu.Unlock()

	if !pending {
		return nil
	}
	width, height := c.screen.Dimensions()

	if extEnabled {
		return func() error { return c.sendExtDesktopSizeRect(width, height, reason, result) }
	}
	if newFBEnabled {
		return func() error { return c.sendRectangleHeader(0, 0, width, height, PseudoEncodingDesktopSize) }
	}
	return nil
}

// sendExtDesktopSizeRect sends the ExtDesktopSize pseudo-rect: a header plus
// one ScreenLayoutEntry describing the whole framebuffer as a single screen.
func (c *Client) sendExtDesktopSizeRect(width, height uint16, reason uint8, result uint16) error {
	if err := c.sendRectangleHeader(int32(reason), int32(result), width, height, PseudoEncodingExtDesktopSize); err != nil {
		return err
	}
	buf := make([]byte, 4)
	buf[0] = 1 // number of screens: this core always reports one
	if err := c.writeOutput(buf); err != nil {
		return err
	}

	entry := make([]byte, 16)
	binary.BigEndian.PutUint32(entry[0:4], 0) // screen ID
	binary.BigEndian.PutUint16(entry[4:6], 0) // X
	binary.BigEndian.PutUint16(entry[6:8], 0) // Y
	binary.BigEndian.PutUint16(entry[8:10], width)
	binary.BigEndian.PutUint16(entry[10:12], height)
	binary.BigEndian.PutUint32(entry[12:16], 0) // flags
	return c.writeOutput(entry)
}

func (c *Client) cursorShapeSender() (func() error, bool) {
	c.mu.Lock()
	changed := c.cursorWasChanged
	enabled := c.richCursorEnabled || c.xCursorEnabled
	c.mu.Unlock()
	if !changed || !enabled {
		return nil, false
	}
	return func() error {
		sent, err := emitCursorShapeRect(c)
		if sent {
			c.mu.Lock()
			c.cursorShapeSent = true
			c.mu.Unlock()
		}
		return err
	}, true
}

func (c *Client) cursorPosSender() (func() error, bool) {
	c.mu.Lock()
	moved := c.cursorWasMoved
	enabled := c.cursorPosEnabled
	c.mu.Unlock()
	if !moved || !enabled {
		return nil, false
	}
	return func() error {
		_, err := emitCursorPosRect(c)
		return err
	}, true
}

func (c *Client) keyboardLedSender() (func() error, bool) {
	c.mu.Lock()
	enabled := c.keyboardLedEnabled
	c.mu.Unlock()
	if !enabled || c.screen.keyboardLedStateFn == nil {
		return nil, false
	}
	if c.haveLastLedState && c.lastLedState == c.screen.keyboardLedStateFn() {
		return nil, false
	}
	return func() error {
		_, err := emitKeyboardLedRect(c, &c.lastLedState, &c.haveLastLedState)
		return err
	}, true
}

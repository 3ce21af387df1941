// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

// scheduleCopy implements §4.3's schedule_copy(region, dx, dy) for one
// client: it folds a just-performed (or about-to-be-performed) framebuffer
// translation into the client's copy/modified bookkeeping, preserving
// invariants I1-I3.
func (c *Client) scheduleCopy(region *Region, dx, dy int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.copy.IsEmpty() && (c.copyDX != dx || c.copyDY != dy) {
		// Step 1: a second simultaneous translation collapses the old copy
		// into modified rather than tracking two vectors.
		c.modified = c.modified.Union(c.copy)
		c.copy = NewEmptyRegion()
	} else {
		// Step 2: the new copy's source may overlap a still-pending copy
		// destination from the same (dx, dy); that overlap is stale and
		// must be redrawn rather than re-copied.
		backup := region.Offset(-dx, -dy).Intersect(c.copy)
		c.modified = c.modified.Union(backup)
	}

	// Step 3.
	c.copy = c.copy.Union(region)
	c.copyDX = dx
	c.copyDY = dy

	// Step 4: new copy destinations whose source lies in a region already
	// known modified must themselves be treated as modified.
	backup2 := c.modified.Offset(dx, dy).Intersect(c.copy)
	c.modified = c.modified.Union(backup2)

	// Step 5: if cursor-shape updates are off, the cursor's last-known
	// rectangle participates in the framebuffer like any other pixels; a
	// copy touching it (as source or destination) invalidates it.
	if !c.richCursorEnabled && !c.xCursorEnabled {
		cursorRect := c.cursorRect()
		if !cursorRect.Empty() {
			cursorRegion := NewRegionFromRect(cursorRect)
			destOverlap := cursorRegion.Intersect(c.copy)
			srcOverlap := cursorRegion.Offset(dx, dy).Intersect(c.copy)
			c.modified = c.modified.Union(destOverlap).Union(srcOverlap)
		}
	}
}

// cursorRect returns the last-known cursor bounding box mirrored to this
// client; callers hold c.mu.
func (c *Client) cursorRect() Rectangle {
	if c.lastCursorX == 0 && c.lastCursorY == 0 {
		return Rectangle{}
	}
	const cursorSpan = 1
	return Rectangle{
		X1: c.lastCursorX, Y1: c.lastCursorY,
		X2: c.lastCursorX + cursorSpan, Y2: c.lastCursorY + cursorSpan,
	}
}

// normalizeBeforeEmit applies invariant I1 (modified ∩ copy = ∅) by
// subtracting modified from copy; called at the start of Process.
func (c *Client) normalizeBeforeEmit() {
	c.copy = c.copy.Subtract(c.modified)
}

// DoCopy physically translates the pixels inside [x1,y1)-[x2,y2) by
// (dx, dy) within the screen's framebuffer, then folds the move into every
// client's bookkeeping via ScheduleCopyRect. Rectangles (here, just the one
// requested) are walked in the order described in §4.3 to avoid a copy
// overwriting its own not-yet-read source when dx/dy keep the move inside
// the same buffer.
func (s *Screen) DoCopy(x1, y1, x2, y2, dx, dy int32) {
	r := s.clampToScreen(x1, y1, x2, y2)
	if r.Empty() {
		return
	}

	s.copyPixels(r, dx, dy)
	s.ScheduleCopyRect(r.X1, r.Y1, r.X2, r.Y2, dx, dy)
}

// copyPixels performs the actual byte move inside the framebuffer. Rows are
// walked bottom-up, except when dy < 0 requires top-down order, to avoid a
// downward in-place move reading rows its own earlier iterations already
// overwrote; likewise for columns against dx within a row.
func (s *Screen) copyPixels(r Rectangle, dx, dy int32) {
	s.mu.RLock()
	fb := s.framebuffer
	stride := s.stride
	bpp := int(s.pixelFormat.BPP / 8)
	s.mu.RUnlock()

	if fb == nil || stride == 0 || bpp == 0 {
		return
	}

	width := int(r.X2 - r.X1)
	rowBytes := width * bpp

	yStart, yEnd, yStep := int(r.Y2)-1, int(r.Y1)-1, -1
	if dy < 0 {
		yStart, yEnd, yStep = int(r.Y1), int(r.Y2), 1
	}

	for y := yStart; y != yEnd; y += yStep {
		srcY := y - int(dy)
		dstRowStart := y*stride + int(r.X1)*bpp
		srcRowStart := srcY*stride + (int(r.X1)-int(dx))*bpp

		if dstRowStart < 0 || srcRowStart < 0 ||
			dstRowStart+rowBytes > len(fb) || srcRowStart+rowBytes > len(fb) {
			continue
		}

		if dx == 0 {
			copy(fb[dstRowStart:dstRowStart+rowBytes], fb[srcRowStart:srcRowStart+rowBytes])
			continue
		}

		// Horizontal component of the move also risks self-overlap within
		// the row; copy right-to-left when dx > 0 moves pixels rightward.
		if dx > 0 {
			for x := width - 1; x >= 0; x-- {
				copy(fb[dstRowStart+x*bpp:dstRowStart+(x+1)*bpp], fb[srcRowStart+x*bpp:srcRowStart+(x+1)*bpp])
			}
		} else {
			for x := 0; x < width; x++ {
				copy(fb[dstRowStart+x*bpp:dstRowStart+(x+1)*bpp], fb[srcRowStart+x*bpp:srcRowStart+(x+1)*bpp])
			}
		}
	}
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "sort"

// Rectangle is an axis-aligned, half-open rectangle: it covers the pixels
// with X in [X1, X2) and Y in [Y1, Y2). A rectangle with X2 <= X1 or
// Y2 <= Y1 is empty and never appears inside a normalized Region.
type Rectangle struct {
	X1, Y1, X2, Y2 int32
}

// NewRectangle builds a Rectangle from a top-left point and a size, matching
// the (x, y, w, h) shape most wire messages carry.
func NewRectangle(x, y int32, w, h uint16) Rectangle {
	return Rectangle{X1: x, Y1: y, X2: x + int32(w), Y2: y + int32(h)}
}

// Empty reports whether the rectangle covers no pixels.
func (r Rectangle) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// Width returns the rectangle's width in pixels, or 0 if empty.
func (r Rectangle) Width() uint16 {
	if r.Empty() {
		return 0
	}
	return uint16(r.X2 - r.X1)
}

// Height returns the rectangle's height in pixels, or 0 if empty.
func (r Rectangle) Height() uint16 {
	if r.Empty() {
		return 0
	}
	return uint16(r.Y2 - r.Y1)
}

// Offset returns the rectangle translated by (dx, dy).
func (r Rectangle) Offset(dx, dy int32) Rectangle {
	return Rectangle{X1: r.X1 + dx, Y1: r.Y1 + dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// intersectRect returns the overlap of a and b, and whether it is non-empty.
func intersectRect(a, b Rectangle) (Rectangle, bool) {
	r := Rectangle{
		X1: max32(a.X1, b.X1),
		Y1: max32(a.Y1, b.Y1),
		X2: min32(a.X2, b.X2),
		Y2: min32(a.Y2, b.Y2),
	}
	return r, !r.Empty()
}

// subtractRect returns the pieces of a not covered by b, decomposed into at
// most four non-overlapping rectangles: the bands above, below, left of, and
// right of the intersection.
func subtractRect(a, b Rectangle) []Rectangle {
	ib, ok := intersectRect(a, b)
	if !ok {
		return []Rectangle{a}
	}

	var out []Rectangle
	if ib.Y1 > a.Y1 {
		out = append(out, Rectangle{X1: a.X1, Y1: a.Y1, X2: a.X2, Y2: ib.Y1})
	}
	if ib.Y2 < a.Y2 {
		out = append(out, Rectangle{X1: a.X1, Y1: ib.Y2, X2: a.X2, Y2: a.Y2})
	}
	if ib.X1 > a.X1 {
		out = append(out, Rectangle{X1: a.X1, Y1: ib.Y1, X2: ib.X1, Y2: ib.Y2})
	}
	if ib.X2 < a.X2 {
		out = append(out, Rectangle{X1: ib.X2, Y1: ib.Y1, X2: a.X2, Y2: ib.Y2})
	}
	return out
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// Region is a set of non-overlapping rectangles, the unit of dirty-area
// bookkeeping for every client: modified, copy, and requested are each a
// Region. The reference server represents this as banded rectangle lists;
// here the same semantics are kept with a flat normalized slice, which is
// simpler to reason about and cheap enough at the rect counts a single
// screen update produces.
type Region struct {
	rects []Rectangle
}

// NewEmptyRegion returns a Region covering no pixels.
func NewEmptyRegion() *Region {
	return &Region{}
}

// NewRegionFromRect returns a Region covering exactly one rectangle, or an
// empty Region if the rectangle is empty.
func NewRegionFromRect(r Rectangle) *Region {
	reg := &Region{}
	if !r.Empty() {
		reg.rects = []Rectangle{r}
	}
	return reg
}

// IsEmpty reports whether the region covers no pixels.
func (reg *Region) IsEmpty() bool {
	return reg == nil || len(reg.rects) == 0
}

// RectCount returns the number of rectangles currently making up the region.
func (reg *Region) RectCount() int {
	if reg == nil {
		return 0
	}
	return len(reg.rects)
}

// Copy returns an independent Region with the same coverage.
func (reg *Region) Copy() *Region {
	out := &Region{}
	if reg != nil && len(reg.rects) > 0 {
		out.rects = append([]Rectangle(nil), reg.rects...)
	}
	return out
}

// Clear empties the region in place.
func (reg *Region) Clear() {
	reg.rects = nil
}

// subtractRectsFromRects returns minuend with every rectangle of subtrahend
// removed from it.
func subtractRectsFromRects(minuend, subtrahend []Rectangle) []Rectangle {
	remaining := append([]Rectangle(nil), minuend...)
	for _, sub := range subtrahend {
		if len(remaining) == 0 {
			break
		}
		next := make([]Rectangle, 0, len(remaining))
		for _, r := range remaining {
			next = append(next, subtractRect(r, sub)...)
		}
		remaining = next
	}
	return remaining
}

// Union returns a new Region covering the pixels in reg or other (or both).
func (reg *Region) Union(other *Region) *Region {
	out := &Region{}
	out.rects = append(out.rects, reg.rects...)
	out.rects = append(out.rects, subtractRectsFromRects(other.rects, reg.rects)...)
	return out
}

// UnionRect returns a new Region with r added to reg's coverage.
func (reg *Region) UnionRect(r Rectangle) *Region {
	return reg.Union(NewRegionFromRect(r))
}

// Intersect returns a new Region covering the pixels present in both reg and other.
func (reg *Region) Intersect(other *Region) *Region {
	out := &Region{}
	for _, a := range reg.rects {
		for _, b := range other.rects {
			if r, ok := intersectRect(a, b); ok {
				out.rects = append(out.rects, r)
			}
		}
	}
	return out
}

// Subtract returns a new Region covering the pixels in reg that are not in other.
func (reg *Region) Subtract(other *Region) *Region {
	out := &Region{}
	out.rects = subtractRectsFromRects(reg.rects, other.rects)
	return out
}

// Offset returns a new Region with every rectangle translated by (dx, dy).
func (reg *Region) Offset(dx, dy int32) *Region {
	out := &Region{rects: make([]Rectangle, len(reg.rects))}
	for i, r := range reg.rects {
		out.rects[i] = r.Offset(dx, dy)
	}
	return out
}

// BoundingBox returns the smallest rectangle containing every rectangle in
// the region, and false if the region is empty.
func (reg *Region) BoundingBox() (Rectangle, bool) {
	if reg.IsEmpty() {
		return Rectangle{}, false
	}

	bbox := reg.rects[0]
	for _, r := range reg.rects[1:] {
		bbox.X1 = min32(bbox.X1, r.X1)
		bbox.Y1 = min32(bbox.Y1, r.Y1)
		bbox.X2 = max32(bbox.X2, r.X2)
		bbox.Y2 = max32(bbox.Y2, r.Y2)
	}
	return bbox, true
}

// Rects returns a snapshot of the region's rectangles in no particular order.
func (reg *Region) Rects() []Rectangle {
	return append([]Rectangle(nil), reg.rects...)
}

// SortedRects returns a snapshot of the region's rectangles ordered primarily
// by Y and secondarily by X, with either axis optionally reversed. CopyRect
// emission (§4.5) needs rectangles walked in an order that never overwrites
// a not-yet-copied source, which this
// parameterizes: callers pick the reversal based on the sign of dx/dy.
func (reg *Region) SortedRects(reverseX, reverseY bool) []Rectangle {
	out := reg.Rects()
	sort.SliceStable(out, func(i, j int) bool {
		yi, yj := out[i].Y1, out[j].Y1
		if reverseY {
			yi, yj = yj, yi
		}
		if yi != yj {
			return yi < yj
		}
		xi, xj := out[i].X1, out[j].X1
		if reverseX {
			xi, xj = xj, xi
		}
		return xi < xj
	})
	return out
}

// Contains reports whether the region fully covers the given rectangle.
// The region tests are its only caller.
func (reg *Region) Contains(r Rectangle) bool {
	if r.Empty() {
		return true
	}
	remaining := subtractRectsFromRects([]Rectangle{r}, reg.rects)
	return len(remaining) == 0
}

// Equal reports whether reg and other cover exactly the same pixels.
func (reg *Region) Equal(other *Region) bool {
	diffA := subtractRectsFromRects(reg.rects, other.rects)
	diffB := subtractRectsFromRects(other.rects, reg.rects)
	return len(diffA) == 0 && len(diffB) == 0
}

// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(x1, y1, x2, y2 int32) Rectangle {
	return Rectangle{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestRegionEmpty(t *testing.T) {
	reg := NewEmptyRegion()
	assert.True(t, reg.IsEmpty())
	assert.Equal(t, 0, reg.RectCount())

	_, ok := reg.BoundingBox()
	assert.False(t, ok)
}

func TestRegionFromRectEmptyInput(t *testing.T) {
	reg := NewRegionFromRect(rect(10, 10, 10, 20))
	assert.True(t, reg.IsEmpty(), "zero-width rectangle must not be stored")
}

func TestRegionUnionDisjoint(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	b := NewRegionFromRect(rect(20, 20, 30, 30))

	u := a.Union(b)
	require.Equal(t, 2, u.RectCount())

	bbox, ok := u.BoundingBox()
	require.True(t, ok)
	assert.Equal(t, rect(0, 0, 30, 30), bbox)
}

func TestRegionUnionOverlapping(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	b := NewRegionFromRect(rect(5, 5, 15, 15))

	u := a.Union(b)
	// Total covered area must equal |a| + |b| - |a ∩ b|.
	area := func(reg *Region) int64 {
		var total int64
		for _, r := range reg.rects {
			total += int64(r.X2-r.X1) * int64(r.Y2-r.Y1)
		}
		return total
	}
	inter := a.Intersect(b)
	assert.Equal(t, area(a)+area(b)-area(inter), area(u))
}

func TestRegionBBoxMatchesBBoxOfBBoxes(t *testing.T) {
	// §8 invariant: bbox(R1 ∪ R2) = bbox(bbox(R1) ∪ bbox(R2)).
	r1 := NewRegionFromRect(rect(0, 0, 10, 5))
	r2 := NewRegionFromRect(rect(20, 30, 25, 40))

	union := r1.Union(r2)
	unionBBox, ok := union.BoundingBox()
	require.True(t, ok)

	bb1, _ := r1.BoundingBox()
	bb2, _ := r2.BoundingBox()
	bboxOfBBoxes := NewRegionFromRect(bb1).Union(NewRegionFromRect(bb2))
	bboxOfBBoxesBBox, ok := bboxOfBBoxes.BoundingBox()
	require.True(t, ok)

	assert.Equal(t, bboxOfBBoxesBBox, unionBBox)
}

func TestRegionIntersect(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	b := NewRegionFromRect(rect(5, 5, 15, 15))

	i := a.Intersect(b)
	require.Equal(t, 1, i.RectCount())
	assert.Equal(t, rect(5, 5, 10, 10), i.rects[0])
}

func TestRegionSubtract(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	b := NewRegionFromRect(rect(0, 0, 5, 10))

	d := a.Subtract(b)
	require.Equal(t, 1, d.RectCount())
	assert.Equal(t, rect(5, 0, 10, 10), d.rects[0])
}

func TestRegionSubtractDisjointNoOp(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	b := NewRegionFromRect(rect(100, 100, 110, 110))

	d := a.Subtract(b)
	assert.True(t, d.Equal(a))
}

func TestRegionModifiedCopyDisjointInvariant(t *testing.T) {
	// §8: at emit-start, modified ∩ copy = ∅ after normalization (I1).
	modified := NewRegionFromRect(rect(5, 25, 15, 35))
	copyRegion := NewRegionFromRect(rect(0, 0, 100, 100))

	normalizedCopy := copyRegion.Subtract(modified)
	assert.True(t, normalizedCopy.Intersect(modified).IsEmpty())
}

func TestRegionOffset(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	moved := a.Offset(10, 20)

	require.Equal(t, 1, moved.RectCount())
	assert.Equal(t, rect(10, 20, 20, 30), moved.rects[0])
}

func TestRegionIdempotentUnion(t *testing.T) {
	a := NewRegionFromRect(rect(0, 0, 10, 10))
	once := a.UnionRect(rect(5, 5, 20, 20))
	twice := once.UnionRect(rect(5, 5, 20, 20))
	assert.True(t, once.Equal(twice))
}

func TestRegionSortedRectsReversal(t *testing.T) {
	reg := NewEmptyRegion()
	reg = reg.UnionRect(rect(0, 0, 10, 10))
	reg = reg.UnionRect(rect(20, 0, 30, 10))
	reg = reg.UnionRect(rect(0, 20, 10, 30))

	forward := reg.SortedRects(false, false)
	reversed := reg.SortedRects(true, true)

	require.Len(t, forward, 3)
	require.Len(t, reversed, 3)
	assert.Equal(t, forward[0], reversed[len(reversed)-1])
}

func TestRegionContains(t *testing.T) {
	reg := NewRegionFromRect(rect(0, 0, 100, 100))
	assert.True(t, reg.Contains(rect(10, 10, 20, 20)))
	assert.False(t, reg.Contains(rect(90, 90, 110, 110)))
}

func TestRectangleWidthHeight(t *testing.T) {
	r := NewRectangle(5, 10, 50, 60)
	assert.Equal(t, uint16(50), r.Width())
	assert.Equal(t, uint16(60), r.Height())
}

func TestMarkRectModifiedClampsOutOfBounds(t *testing.T) {
	// §8: x2<=0 or y2<=0 or x1>=width or y1>=height must be a no-op.
	screen, client, _ := testClient(t, 400, 300)
	candidates := []Rectangle{
		rect(-50, -50, 0, 10),
		rect(500, 0, 600, 100),
		rect(0, 400, 100, 500),
	}

	for _, c := range candidates {
		screen.MarkRectModified(c.X1, c.Y1, c.X2, c.Y2)
		client.mu.Lock()
		isNoOp := client.modified.IsEmpty()
		client.mu.Unlock()
		assert.True(t, isNoOp, "expected %+v to be clamped to a no-op", c)
	}
}

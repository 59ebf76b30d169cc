package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsg-labs/pagecache/common"
)

// TestReplacer_UnderKPreferredOverFull verifies policy rule 1: a frame
// with fewer than k accesses is chosen over one with >=k accesses, even
// when the fully-tracked frame was accessed first.
func TestReplacer_UnderKPreferredOverFull(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)

	// Frame 0 gets two accesses (graduates to the full set).
	r.RecordAccess(0)
	r.RecordAccess(0)
	r.SetEvictable(0, true)

	// Frame 1 gets a single access (stays under-k).
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim, "under-k frame must win over a fully-tracked one")
}

// TestReplacer_LargestBackwardKDistance verifies policy rule 3 among
// fully-tracked frames.
func TestReplacer_LargestBackwardKDistance(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)

	r.RecordAccess(0)
	r.RecordAccess(0) // frame 0's 2nd access at t=1
	r.RecordAccess(1)
	r.RecordAccess(1) // frame 1's 2nd access at t=3, more recent
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(0), victim, "the frame with the larger backward k-distance should be evicted")
}

// TestReplacer_NonEvictableSkipped ensures pinned (non-evictable)
// frames never become victims even if they would otherwise qualify.
func TestReplacer_NonEvictableSkipped(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)

	r.RecordAccess(0)
	r.SetEvictable(0, false)
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim)
}

// TestReplacer_EvictClearsHistory verifies evict() removes the victim
// from future consideration until it is accessed again.
func TestReplacer_EvictClearsHistory(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)

	r.RecordAccess(0)
	r.SetEvictable(0, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(0), victim)

	_, ok = r.Evict()
	assert.False(t, ok, "no frame should remain evictable")
}

// TestReplacer_SizeTracksEvictableCount checks that Size reflects only
// frames currently marked evictable, not every tracked frame.
func TestReplacer_SizeTracksEvictableCount(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)

	r.RecordAccess(0)
	r.SetEvictable(0, true)
	assert.Equal(t, 1, r.Size())

	r.RecordAccess(1)
	r.SetEvictable(1, true)
	assert.Equal(t, 2, r.Size())

	r.SetEvictable(0, false)
	assert.Equal(t, 1, r.Size())

	_, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, 0, r.Size())
}

// TestReplacer_RemoveRequiresEvictable checks that Remove panics when
// asked to drop a frame that isn't marked evictable.
func TestReplacer_RemoveRequiresEvictable(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)
	r.RecordAccess(0)
	r.SetEvictable(0, true)

	assert.Panics(t, func() {
		r2 := NewLRUKReplacer(4, 2, nil)
		r2.RecordAccess(1)
		r2.SetEvictable(1, false)
		r2.Remove(1)
	})

	r.Remove(0)
	assert.Equal(t, 0, r.Size())
}

// TestReplacer_RemoveUnknownIsNoop matches "no-op on unknown frames".
func TestReplacer_RemoveUnknownIsNoop(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)
	assert.NotPanics(t, func() { r.Remove(3) })
}

// TestReplacer_SetEvictableRequiresHistory matches "requires the frame
// has at least one recorded access"; this is a documented no-op, not
// a panic.
func TestReplacer_SetEvictableRequiresHistory(t *testing.T) {
	r := NewLRUKReplacer(4, 2, nil)
	r.SetEvictable(2, true)
	assert.Equal(t, 0, r.Size())
}

// TestReplacer_KEqualsOne exercises the edge case where a frame
// graduates to the fully-tracked set on its very first access.
func TestReplacer_KEqualsOne(t *testing.T) {
	r := NewLRUKReplacer(4, 1, nil)

	r.RecordAccess(0)
	r.SetEvictable(0, true)
	r.RecordAccess(1)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(0), victim, "with k=1 every frame is immediately fully tracked; earliest access wins")
}

package storage

import (
	"log/slog"
	"sync"

	"github.com/dsg-labs/pagecache/common"
)

// hashIndexEntry is one (page id, frame id) pair stored in a bucket.
type hashIndexEntry struct {
	key   common.PageID
	value common.FrameID
}

// hashBucket holds up to bucketSize entries sharing localDepth low
// hash bits. Multiple directory slots may alias the same bucket.
type hashBucket struct {
	localDepth int
	entries    []hashIndexEntry
}

// ExtendibleHashIndex is a concurrent page_id -> frame_id map using
// extendible hashing: a directory of 2^globalDepth slots, each
// pointing at a bucket shared by every slot with the same low
// localDepth bits. The directory doubles and buckets split as needed;
// buckets never merge on removal.
type ExtendibleHashIndex struct {
	mu sync.Mutex

	globalDepth int
	bucketSize  int
	dir         []*hashBucket
	numBuckets  int

	logger *slog.Logger
}

// NewExtendibleHashIndex constructs an index with a single empty
// bucket at global depth 0.
func NewExtendibleHashIndex(bucketSize int, logger *slog.Logger) *ExtendibleHashIndex {
	common.Assert(bucketSize > 0, "extendible hash index requires bucketSize > 0, got %d", bucketSize)
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtendibleHashIndex{
		bucketSize: bucketSize,
		dir:        []*hashBucket{{localDepth: 0}},
		numBuckets: 1,
		logger:     logger,
	}
}

func (h *ExtendibleHashIndex) dirIndexLocked(key common.PageID) int {
	mask := uint64(1)<<uint(h.globalDepth) - 1
	return int(common.HashPageID(key) & mask)
}

// Find returns the frame id mapped to key, if present.
func (h *ExtendibleHashIndex) Find(key common.PageID) (common.FrameID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.dir[h.dirIndexLocked(key)]
	for _, e := range b.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return common.InvalidFrameID, false
}

// Insert stores value under key, overwriting any existing mapping.
// It splits buckets (and doubles the directory when necessary) until
// the target bucket has room.
func (h *ExtendibleHashIndex) Insert(key common.PageID, value common.FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.dirIndexLocked(key)
	b := h.dir[idx]
	for i, e := range b.entries {
		if e.key == key {
			b.entries[i].value = value
			return
		}
	}

	for len(b.entries) >= h.bucketSize {
		if b.localDepth == h.globalDepth {
			h.growDirectoryLocked()
			idx = h.dirIndexLocked(key)
			b = h.dir[idx]
		}
		h.splitBucketLocked(idx)
		idx = h.dirIndexLocked(key)
		b = h.dir[idx]
	}

	b.entries = append(b.entries, hashIndexEntry{key: key, value: value})
}

func (h *ExtendibleHashIndex) growDirectoryLocked() {
	oldSize := len(h.dir)
	newDir := make([]*hashBucket, oldSize*2)
	copy(newDir, h.dir)
	for j := oldSize; j < len(newDir); j++ {
		newDir[j] = newDir[j-oldSize]
	}
	h.dir = newDir
	h.globalDepth++
	h.logger.Debug("hash index grew directory", "globalDepth", h.globalDepth)
}

// splitBucketLocked splits the bucket currently referenced by
// directory slot idx into two buckets of local depth localDepth+1,
// redistributing its entries, then repoints the half of the aliasing
// slots whose new high bit is set to the new sibling bucket.
func (h *ExtendibleHashIndex) splitBucketLocked(idx int) {
	old := h.dir[idx]
	newLocalDepth := old.localDepth + 1

	if newLocalDepth > 63 {
		panic(&common.Error{
			Code: common.HashPathological,
			Msg:  "bucket cannot be separated by further splitting: all keys share the full hash prefix",
		})
	}

	old.localDepth = newLocalDepth
	sibling := &hashBucket{localDepth: newLocalDepth}
	h.numBuckets++

	highBit := 1 << uint(newLocalDepth-1)
	for i := range h.dir {
		if h.dir[i] == old && i&highBit != 0 {
			h.dir[i] = sibling
		}
	}

	kept := old.entries[:0:0]
	for _, e := range old.entries {
		target := h.dir[h.dirIndexLocked(e.key)]
		if target == sibling {
			sibling.entries = append(sibling.entries, e)
		} else {
			kept = append(kept, e)
		}
	}
	old.entries = kept

	h.logger.Debug("hash index split bucket", "localDepth", newLocalDepth, "numBuckets", h.numBuckets)
}

// Remove deletes key if present and reports whether it existed. It
// never merges buckets.
func (h *ExtendibleHashIndex) Remove(key common.PageID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.dir[h.dirIndexLocked(key)]
	for i, e := range b.entries {
		if e.key == key {
			last := len(b.entries) - 1
			b.entries[i] = b.entries[last]
			b.entries = b.entries[:last]
			return true
		}
	}
	return false
}

// GlobalDepth returns the number of low hash bits the directory uses.
func (h *ExtendibleHashIndex) GlobalDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.globalDepth
}

// LocalDepth returns the local depth of the bucket referenced by
// directory slot dirIndex.
func (h *ExtendibleHashIndex) LocalDepth(dirIndex int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[dirIndex].localDepth
}

// NumBuckets returns the total number of distinct buckets currently
// allocated.
func (h *ExtendibleHashIndex) NumBuckets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.numBuckets
}

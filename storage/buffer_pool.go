package storage

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dsg-labs/pagecache/common"
)

// BufferPool manages the reading and writing of pages between a
// DiskStore and memory. It acts as a central cache of fixed capacity,
// keeping hot pages resident and selecting eviction victims with an
// LRU-K policy when the pool fills up. A single pool-level mutex
// serializes every public operation, including the call into
// DiskStore. The hash index and replacer each hold their own mutex,
// acquired inner to this one.
type BufferPool struct {
	mu sync.Mutex

	poolSize int
	frames   []*PageFrame
	freeList []common.FrameID

	index    *ExtendibleHashIndex
	replacer *LRUKReplacer
	disk     DiskStore

	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewBufferPool creates a pool of poolSize frames backed by disk,
// using k as the replacer's backward-distance window.
func NewBufferPool(poolSize int, disk DiskStore, k int, logger *slog.Logger) *BufferPool {
	common.Assert(poolSize > 0, "buffer pool requires poolSize > 0, got %d", poolSize)
	if logger == nil {
		logger = slog.Default()
	}

	frames := make([]*PageFrame, poolSize)
	freeList := make([]common.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newPageFrame()
		freeList[i] = common.FrameID(i)
	}

	return &BufferPool{
		poolSize: poolSize,
		frames:   frames,
		freeList: freeList,
		index:    NewExtendibleHashIndex(common.DefaultBucketSize, logger),
		replacer: NewLRUKReplacer(poolSize, k, logger),
		disk:     disk,
		logger:   logger,
	}
}

// DiskStore returns the pool's disk collaborator.
func (bp *BufferPool) DiskStore() DiskStore {
	return bp.disk
}

// acquireFrameLocked implements the shared frame acquisition protocol:
// take the free list's head, or else evict a victim, flushing it first
// if dirty and removing its old mapping from the hash index. Returns a
// nil frame (and nil error) when the pool is exhausted.
func (bp *BufferPool) acquireFrameLocked() (*PageFrame, common.FrameID, error) {
	if n := len(bp.freeList); n > 0 {
		fid := bp.freeList[0]
		bp.freeList = bp.freeList[1:]
		return bp.frames[fid], fid, nil
	}

	fid, ok := bp.replacer.Evict()
	if !ok {
		return nil, common.InvalidFrameID, nil
	}

	frame := bp.frames[fid]
	if frame.IsDirty {
		if err := bp.disk.WritePage(frame.PageID, frame.Bytes[:]); err != nil {
			// The victim was dropped from the replacer by Evict above but
			// never made it to the free list or a pinned state; re-register
			// it as evictable so it stays eligible for a future eviction
			// attempt instead of becoming unreachable.
			bp.replacer.RecordAccess(fid)
			bp.replacer.SetEvictable(fid, true)
			return nil, common.InvalidFrameID, common.WrapDiskIOError("write_page", frame.PageID, err)
		}
		frame.IsDirty = false
	}
	bp.evictions.Add(1)
	if frame.PageID.IsValid() {
		bp.index.Remove(frame.PageID)
	}
	bp.logger.Debug("buffer pool evicted frame", "frame", fid, "page", frame.PageID)
	return frame, fid, nil
}

// NewPage allocates a fresh page id, pins a frame for it, and returns
// the page id and frame. ok is false if no frame is free and no frame
// is evictable.
func (bp *BufferPool) NewPage() (common.PageID, *PageFrame, bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, fid, err := bp.acquireFrameLocked()
	if err != nil {
		return common.InvalidPageID, nil, false, err
	}
	if frame == nil {
		return common.InvalidPageID, nil, false, nil
	}

	pageID, err := bp.disk.AllocatePage()
	if err != nil {
		bp.freeList = append(bp.freeList, fid)
		return common.InvalidPageID, nil, false, common.WrapDiskIOError("allocate_page", common.InvalidPageID, err)
	}

	frame.PageID = pageID
	frame.PinCount = 1
	frame.IsDirty = false
	for i := range frame.Bytes {
		frame.Bytes[i] = 0
	}

	bp.index.Insert(pageID, fid)
	bp.replacer.RecordAccess(fid)
	bp.replacer.SetEvictable(fid, false)

	bp.logger.Debug("buffer pool created new page", "page", pageID, "frame", fid)
	return pageID, frame, true, nil
}

// FetchPage pins and returns the frame holding pageID, reading it from
// disk into an acquired frame on a miss. ok is false if the page is
// not resident and no frame can be acquired for it.
func (bp *BufferPool) FetchPage(pageID common.PageID) (*PageFrame, bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fid, hit := bp.index.Find(pageID); hit {
		bp.hits.Add(1)
		frame := bp.frames[fid]
		frame.PinCount++
		bp.replacer.RecordAccess(fid)
		bp.replacer.SetEvictable(fid, false)
		return frame, true, nil
	}
	bp.misses.Add(1)

	frame, fid, err := bp.acquireFrameLocked()
	if err != nil {
		return nil, false, err
	}
	if frame == nil {
		return nil, false, nil
	}

	if err := bp.disk.ReadPage(pageID, frame.Bytes[:]); err != nil {
		bp.freeList = append(bp.freeList, fid)
		return nil, false, common.WrapDiskIOError("read_page", pageID, err)
	}

	frame.PageID = pageID
	frame.PinCount = 1
	frame.IsDirty = false

	bp.index.Insert(pageID, fid)
	bp.replacer.RecordAccess(fid)
	bp.replacer.SetEvictable(fid, false)

	return frame, true, nil
}

// UnpinPage decrements pageID's pin count and, once it reaches zero,
// marks the frame evictable. dirty is OR-merged into the frame's dirty
// flag. Returns false if the page is not resident or was already
// unpinned.
func (bp *BufferPool) UnpinPage(pageID common.PageID, dirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.index.Find(pageID)
	if !ok {
		return false
	}
	frame := bp.frames[fid]
	if frame.PinCount == 0 {
		return false
	}

	frame.PinCount--
	if dirty {
		frame.IsDirty = true
	}
	if frame.PinCount == 0 {
		bp.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes pageID's frame to disk unconditionally and clears
// its dirty flag. Pin count and evictability are untouched. Returns
// false if the page is not resident.
func (bp *BufferPool) FlushPage(pageID common.PageID) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.index.Find(pageID)
	if !ok {
		return false, nil
	}
	frame := bp.frames[fid]
	if err := bp.disk.WritePage(pageID, frame.Bytes[:]); err != nil {
		return false, common.WrapDiskIOError("write_page", pageID, err)
	}
	frame.IsDirty = false
	return true, nil
}

// FlushAllPages flushes every resident page. Unlike a frame-index
// sweep, it only ever touches frames that currently hold a real page.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, frame := range bp.frames {
		if !frame.PageID.IsValid() {
			continue
		}
		if err := bp.disk.WritePage(frame.PageID, frame.Bytes[:]); err != nil {
			return common.WrapDiskIOError("write_page", frame.PageID, err)
		}
		frame.IsDirty = false
	}
	return nil
}

// DeletePage removes pageID from the pool entirely, reclaiming its
// frame and id. If pageID is not resident, it returns true (nothing to
// do). If resident but pinned, it returns false.
func (bp *BufferPool) DeletePage(pageID common.PageID) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.index.Find(pageID)
	if !ok {
		return true, nil
	}

	frame := bp.frames[fid]
	if frame.PinCount > 0 {
		return false, nil
	}

	if err := bp.disk.DeallocatePage(pageID); err != nil {
		return false, common.WrapDiskIOError("deallocate_page", pageID, err)
	}

	bp.index.Remove(pageID)
	bp.replacer.Remove(fid)
	frame.reset()
	bp.freeList = append(bp.freeList, fid)
	return true, nil
}

// PoolSize returns the fixed number of frames the pool was constructed with.
func (bp *BufferPool) PoolSize() int {
	return bp.poolSize
}

// Stats returns cumulative fetch hit/miss and eviction counts, for
// observability (e.g. the pagecache-bench command).
func (bp *BufferPool) Stats() (hits, misses, evictions int64) {
	return bp.hits.Load(), bp.misses.Load(), bp.evictions.Load()
}

// Close releases the underlying disk store's resources. Callers should
// flush pages they care about before calling Close.
func (bp *BufferPool) Close() error {
	return bp.disk.Close()
}

package storage

import (
	"sync"

	"github.com/dsg-labs/pagecache/common"
)

// PageFrame is a single in-memory slot capable of holding one page. The
// buffer pool owns a fixed array of these for its entire lifetime;
// residency (which page, if any, currently occupies the frame) changes
// as pages are fetched and evicted, but the frame itself is never
// reallocated.
//
// PageID, PinCount and IsDirty are mutated exclusively by BufferPool
// under its single pool-wide latch and need no mutex of their own.
// PageLatch is the one piece of per-frame synchronization
// the buffer pool exposes to its caller: it protects the raw Bytes
// against concurrent readers/writers of the same *pinned* page, which
// is explicitly outside what pin counts guarantee.
type PageFrame struct {
	// Bytes holds the raw physical contents of the resident page.
	Bytes [common.PageSize]byte
	// PageLatch protects Bytes from concurrent access by callers that
	// hold a pin on the frame. The buffer pool never acquires this;
	// it is for an access-methods layer built on top of this subsystem.
	PageLatch sync.RWMutex

	PageID   common.PageID
	PinCount int
	IsDirty  bool
}

func newPageFrame() *PageFrame {
	return &PageFrame{PageID: common.InvalidPageID}
}

// reset clears the frame back to its free state: no page id, no pins,
// not dirty, zeroed bytes. The caller must hold the pool latch and be
// sure the frame is referenced by neither the hash index nor the
// replacer.
func (f *PageFrame) reset() {
	f.PageID = common.InvalidPageID
	f.PinCount = 0
	f.IsDirty = false
	for i := range f.Bytes {
		f.Bytes[i] = 0
	}
}

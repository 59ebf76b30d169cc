package storage

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/dsg-labs/pagecache/common"
)

// frameRecord is the replacer's per-frame bookkeeping: the sequence of
// access timestamps and whether the frame currently participates in
// victim selection.
type frameRecord struct {
	history   []int64
	evictable bool
	// underK, when non-nil, is this frame's position in the LRUKReplacer's
	// under-k queue. A frame is removed from the queue the moment its
	// history reaches k accesses and never returns to it.
	underK *list.Element
}

// LRUKReplacer tracks per-frame access history for a fixed set of
// frames and selects eviction victims by backward k-distance: the
// time since the kth most recent access, with frames seen fewer than
// k times treated as having infinite backward distance. It keeps a
// two-tier structure: a small queue of frames that have been accessed
// fewer than k times,
// ordered by first-access time, plus a linear scan over the remaining
// tracked frames for the k-distance comparison, avoiding an O(n) scan
// for the common case where an under-k candidate exists.
type LRUKReplacer struct {
	mu sync.Mutex

	numFrames int
	k         int
	clock     int64

	records map[common.FrameID]*frameRecord
	underK  *list.List // FrameID values, front = earliest first access

	evictableCount int

	logger *slog.Logger
}

// NewLRUKReplacer constructs a replacer for up to numFrames distinct
// frame ids, using k as the backward-distance window.
func NewLRUKReplacer(numFrames int, k int, logger *slog.Logger) *LRUKReplacer {
	common.Assert(k > 0, "lru-k replacer requires k > 0, got %d", k)
	if logger == nil {
		logger = slog.Default()
	}
	return &LRUKReplacer{
		numFrames: numFrames,
		k:         k,
		records:   make(map[common.FrameID]*frameRecord, numFrames),
		underK:    list.New(),
		logger:    logger,
	}
}

// RecordAccess appends the current timestamp to frameID's history and
// advances the replacer's clock.
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[frameID]
	if !ok {
		rec = &frameRecord{}
		r.records[frameID] = rec
	}

	firstAccess := len(rec.history) == 0
	rec.history = append(rec.history, r.clock)
	r.clock++

	switch {
	case firstAccess:
		if len(rec.history) < r.k {
			rec.underK = r.underK.PushBack(frameID)
		}
	case len(rec.history) == r.k:
		if rec.underK != nil {
			r.underK.Remove(rec.underK)
			rec.underK = nil
		}
	}
}

// SetEvictable changes frameID's evictable flag. It is a no-op if the
// frame has no recorded access.
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[frameID]
	if !ok || len(rec.history) == 0 {
		return
	}
	if rec.evictable == evictable {
		return
	}
	rec.evictable = evictable
	if evictable {
		r.evictableCount++
	} else {
		r.evictableCount--
	}
}

// Evict picks and removes one evictable frame following the LRU-K
// policy and clears its history. It returns (InvalidFrameID, false) if
// no frame is currently evictable.
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim, ok := r.pickVictimLocked()
	if !ok {
		return common.InvalidFrameID, false
	}

	rec := r.records[victim]
	if rec.underK != nil {
		r.underK.Remove(rec.underK)
	}
	delete(r.records, victim)
	r.evictableCount--

	r.logger.Debug("lruk replacer evicted frame", "frame", victim)
	return victim, true
}

func (r *LRUKReplacer) pickVictimLocked() (common.FrameID, bool) {
	// Phase 1: the under-k set is ordered by first-access time already,
	// so the earliest evictable entry is the answer if one exists.
	for e := r.underK.Front(); e != nil; e = e.Next() {
		fid := e.Value.(common.FrameID)
		if r.records[fid].evictable {
			return fid, true
		}
	}

	// Phase 2: no +inf candidates. Scan the fully-tracked (>= k accesses)
	// set for the largest backward k-distance, breaking ties by earliest
	// first access.
	var (
		best        common.FrameID
		found       bool
		bestKDist   int64
		bestFirstTS int64
	)
	for fid, rec := range r.records {
		if !rec.evictable || len(rec.history) < r.k {
			continue
		}
		kDist := rec.history[len(rec.history)-r.k]
		firstTS := rec.history[0]
		if !found || kDist < bestKDist || (kDist == bestKDist && firstTS < bestFirstTS) {
			best, found, bestKDist, bestFirstTS = fid, true, kDist, firstTS
		}
	}
	return best, found
}

// Remove forcibly drops the record of an evictable frame, e.g. when its
// page is deleted from the pool. It is a no-op on an untracked frame.
func (r *LRUKReplacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[frameID]
	if !ok {
		return
	}
	common.Assert(rec.evictable, "cannot remove non-evictable frame %d from replacer", frameID)

	if rec.underK != nil {
		r.underK.Remove(rec.underK)
	}
	delete(r.records, frameID)
	r.evictableCount--
}

// Size returns the number of frames currently evictable.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableCount
}

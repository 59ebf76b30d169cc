package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"

	"github.com/dsg-labs/pagecache/common"
)

// pagesPerSegment bounds how many pages a single segment file holds.
// Page id ranges [n*pagesPerSegment, (n+1)*pagesPerSegment) live in
// segment file n, so a segment is always pre-sized to its full
// capacity on first touch and every ReadAt/WriteAt into it is
// in-bounds by construction.
const pagesPerSegment = 1024

const segmentSizeBytes = int64(pagesPerSegment) * int64(common.PageSize)

// segmentFile is one fixed-size OS file backing a contiguous range of
// page ids.
type segmentFile struct {
	file *os.File
	// sized guards the one-time Truncate that pre-allocates the segment
	// to its full capacity.
	sized atomic.Bool
	mu    sync.Mutex
}

func (sf *segmentFile) ensureSized() error {
	if sf.sized.Load() {
		return nil
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.sized.Load() {
		return nil
	}
	if err := sf.file.Truncate(segmentSizeBytes); err != nil {
		return err
	}
	sf.sized.Store(true)
	return nil
}

// FileDiskStore is a segmented-file-backed DiskStore rooted at a
// directory on disk. Open segment handles are cached in a
// github.com/puzpuzpuz/xsync/v3.MapOf so concurrent readers/writers of
// different segments never contend on a single map mutex. Reclaimed
// page ids are tracked in a github.com/tidwall/btree ordered set so
// AllocatePage always reuses the lowest free id before growing the id
// space.
type FileDiskStore struct {
	rootPath string

	segments *xsync.MapOf[int64, *segmentFile]

	allocMu sync.Mutex
	nextID  common.PageID
	free    *btree.BTreeG[common.PageID]
}

// NewFileDiskStore opens (creating if necessary) a store rooted at
// rootPath.
func NewFileDiskStore(rootPath string) (*FileDiskStore, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, err
	}
	return &FileDiskStore{
		rootPath: rootPath,
		segments: xsync.NewMapOf[int64, *segmentFile](),
		free:     btree.NewBTreeG(func(a, b common.PageID) bool { return a < b }),
	}, nil
}

func (s *FileDiskStore) segmentFor(id common.PageID) (*segmentFile, int64, error) {
	segIdx := int64(id) / pagesPerSegment
	if sf, ok := s.segments.Load(segIdx); ok {
		return sf, segIdx, nil
	}

	path := filepath.Join(s.rootPath, fmt.Sprintf("segment_%06d.dat", segIdx))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, segIdx, err
	}
	sf := &segmentFile{file: f}

	actual, loaded := s.segments.LoadOrStore(segIdx, sf)
	if loaded {
		// Lost the race to open this segment; use the winner's handle.
		_ = f.Close()
		return actual, segIdx, nil
	}
	return sf, segIdx, nil
}

func (s *FileDiskStore) ReadPage(id common.PageID, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "read buffer must be PageSize bytes")

	sf, segIdx, err := s.segmentFor(id)
	if err != nil {
		return err
	}
	if err := sf.ensureSized(); err != nil {
		return err
	}

	offset := (int64(id) - segIdx*pagesPerSegment) * int64(common.PageSize)
	_, err = sf.file.ReadAt(buf, offset)
	return err
}

func (s *FileDiskStore) WritePage(id common.PageID, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "write buffer must be PageSize bytes")

	sf, segIdx, err := s.segmentFor(id)
	if err != nil {
		return err
	}
	if err := sf.ensureSized(); err != nil {
		return err
	}

	offset := (int64(id) - segIdx*pagesPerSegment) * int64(common.PageSize)
	_, err = sf.file.WriteAt(buf, offset)
	return err
}

// AllocatePage reuses the lowest reclaimed id if one exists, otherwise
// grows the id space monotonically.
func (s *FileDiskStore) AllocatePage() (common.PageID, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	if id, ok := s.free.Min(); ok {
		s.free.Delete(id)
		return id, nil
	}
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *FileDiskStore) DeallocatePage(id common.PageID) error {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	s.free.Set(id)
	return nil
}

// Close closes every open segment file handle.
func (s *FileDiskStore) Close() error {
	var firstErr error
	s.segments.Range(func(_ int64, sf *segmentFile) bool {
		if err := sf.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

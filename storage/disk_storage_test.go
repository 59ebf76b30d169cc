package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsg-labs/pagecache/common"
)

func TestFileDiskStore_WriteThenRead(t *testing.T) {
	store, err := NewFileDiskStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	id, err := store.AllocatePage()
	require.NoError(t, err)

	var buf [common.PageSize]byte
	copy(buf[:], []byte("hello-page"))
	require.NoError(t, store.WritePage(id, buf[:]))

	var readBack [common.PageSize]byte
	require.NoError(t, store.ReadPage(id, readBack[:]))
	assert.Equal(t, buf, readBack)
}

// TestFileDiskStore_AllocateReusesLowestReclaimedID checks that the
// ordered free set always offers the lowest reclaimed id before
// growing the id space.
func TestFileDiskStore_AllocateReusesLowestReclaimedID(t *testing.T) {
	store, err := NewFileDiskStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	var ids []common.PageID
	for i := 0; i < 5; i++ {
		id, err := store.AllocatePage()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, store.DeallocatePage(ids[3]))
	require.NoError(t, store.DeallocatePage(ids[1]))

	reused, err := store.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, ids[1], reused, "the lowest reclaimed id must be reused first")

	reused2, err := store.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, ids[3], reused2)

	grown, err := store.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, ids[len(ids)-1]+1, grown, "once the free set is empty, ids grow monotonically")
}

// TestFileDiskStore_CrossesSegmentBoundary exercises page ids that
// land in different segment files.
func TestFileDiskStore_CrossesSegmentBoundary(t *testing.T) {
	store, err := NewFileDiskStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	lowID := common.PageID(1)
	highID := common.PageID(pagesPerSegment + 1)

	var lowBuf, highBuf [common.PageSize]byte
	copy(lowBuf[:], []byte("low-segment"))
	copy(highBuf[:], []byte("high-segment"))

	require.NoError(t, store.WritePage(lowID, lowBuf[:]))
	require.NoError(t, store.WritePage(highID, highBuf[:]))

	var readLow, readHigh [common.PageSize]byte
	require.NoError(t, store.ReadPage(lowID, readLow[:]))
	require.NoError(t, store.ReadPage(highID, readHigh[:]))

	assert.Equal(t, lowBuf, readLow)
	assert.Equal(t, highBuf, readHigh)
}

func TestInMemoryDiskStore_UnwrittenPageReadsZero(t *testing.T) {
	store := NewInMemoryDiskStore()
	id, err := store.AllocatePage()
	require.NoError(t, err)

	var buf [common.PageSize]byte
	for i := range buf {
		buf[i] = 0xff
	}
	require.NoError(t, store.ReadPage(id, buf[:]))
	for _, b := range buf {
		assert.Zero(t, b)
	}
}

func TestInMemoryDiskStore_AllocateReusesReclaimedID(t *testing.T) {
	store := NewInMemoryDiskStore()
	id0, err := store.AllocatePage()
	require.NoError(t, err)
	_, err = store.AllocatePage()
	require.NoError(t, err)

	require.NoError(t, store.DeallocatePage(id0))

	reused, err := store.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, id0, reused)
}

package store_test

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jieqibox/openingbook/internal/book"
	"github.com/jieqibox/openingbook/internal/store"
)

func newTestStore(t *testing.T, path string, mods ...func(*store.Config)) *store.Store {
	t.Helper()
	cfg := store.Config{
		Path:   path,
		Logger: zerolog.Nop(),
	}
	for _, mod := range mods {
		mod(&cfg)
	}
	s, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tempBookPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "book.jb")
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestStoreScenario(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	created, err := s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2", Priority: 10, Allowed: true})
	require.NoError(t, err)
	assert.True(t, created)

	moves, err := s.QueryMoves(startpos)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, "h2e2", moves[0].UCIMove)
	assert.Equal(t, int32(10), moves[0].Priority)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, book.Stats{TotalPositions: 1, TotalMoves: 1, AllowedMoves: 1}, stats)

	// Re-adding the same identity overwrites instead of duplicating.
	created, err = s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2", Priority: 20, Wins: 4})
	require.NoError(t, err)
	assert.False(t, created)

	moves, err = s.QueryMoves(startpos)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, book.Move{UCIMove: "h2e2", Priority: 20, Wins: 4}, moves[0])

	deleted, err := s.DeleteEntry(startpos, "h2e2")
	require.NoError(t, err)
	assert.True(t, deleted)

	moves, err = s.QueryMoves(startpos)
	require.NoError(t, err)
	assert.NotNil(t, moves)
	assert.Empty(t, moves)

	stats, err = s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, book.Stats{}, stats)
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	moves, err := s.QueryMoves(startpos)
	require.NoError(t, err)
	assert.Empty(t, moves)

	entries, err := s.ExportAll()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, fs.ErrNotExist, "read-only operations must not create the file")
}

func TestStoreAddIsIdempotent(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)
	req := book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2", Priority: 3, Comment: "x"}

	_, err := s.AddEntry(req)
	require.NoError(t, err)
	first := readFile(t, path)

	created, err := s.AddEntry(req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, readFile(t, path))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalMoves)
}

func TestStoreDeleteMissingLeavesFile(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	_, err := s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2"})
	require.NoError(t, err)
	before := readFile(t, path)

	for _, tc := range []struct{ fen, move string }{
		{startpos, "b2e2"},
		{"unknown", "h2e2"},
	} {
		deleted, err := s.DeleteEntry(tc.fen, tc.move)
		require.NoError(t, err)
		assert.False(t, deleted)
	}
	assert.Equal(t, before, readFile(t, path))
}

func TestStoreValidation(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	for _, req := range []book.AddEntryRequest{
		{UCIMove: "h2e2"},
		{FEN: startpos},
		{},
	} {
		_, err := s.AddEntry(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrValidation)
		assert.NotErrorIs(t, err, store.ErrIO)
	}

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestStoreStatsMatchExport(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))

	for i := 0; i < 5; i++ {
		for j := 0; j <= i; j++ {
			_, err := s.AddEntry(book.AddEntryRequest{
				FEN:      fmt.Sprintf("pos-%d", i),
				UCIMove:  fmt.Sprintf("m%d", j),
				Priority: int32(j),
				Wins:     uint32(i),
				Draws:    uint32(j),
				Losses:   1,
				Allowed:  j%2 == 0,
			})
			require.NoError(t, err)
		}
	}

	stats, err := s.GetStats()
	require.NoError(t, err)
	entries, err := s.ExportAll()
	require.NoError(t, err)

	var want book.Stats
	want.TotalPositions = uint64(len(entries))
	for _, e := range entries {
		for _, m := range e.Moves {
			want.TotalMoves++
			want.TotalWins += uint64(m.Wins)
			want.TotalDraws += uint64(m.Draws)
			want.TotalLosses += uint64(m.Losses)
			if m.Allowed {
				want.AllowedMoves++
			}
		}
	}
	assert.Equal(t, want, stats)
	assert.Equal(t, uint64(15), stats.TotalMoves)
	assert.Equal(t, uint64(5), stats.TotalPositions)
}

func TestStoreClearAll(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path, func(c *store.Config) { c.Compression = "none" })

	_, err := s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2"})
	require.NoError(t, err)
	require.NoError(t, s.ClearAll())

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, book.Stats{}, stats)

	// The empty book is persisted, not just the file removed.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(store.BookHeaderSize), info.Size())
}

func TestStoreSharesFileAcrossHandles(t *testing.T) {
	path := tempBookPath(t)
	a := newTestStore(t, path)
	b := newTestStore(t, path, func(c *store.Config) { c.Compression = "none" })

	_, err := a.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2", Priority: 1})
	require.NoError(t, err)

	moves, err := b.QueryMoves(startpos)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2e2"}, moveNames(moves))

	_, err = b.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "b2e2", Priority: 2})
	require.NoError(t, err)

	header, err := store.ReadBookHeader(readFile(t, path))
	require.NoError(t, err)
	assert.False(t, header.Compressed())

	moves, err = a.QueryMoves(startpos)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2e2", "h2e2"}, moveNames(moves))
}

func TestStoreCorruptFile(t *testing.T) {
	path := tempBookPath(t)
	garbage := []byte("definitely not an opening book")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	s := newTestStore(t, path)

	_, err := s.QueryMoves(startpos)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrCorrupt)

	var de *store.DecodeError
	assert.ErrorAs(t, err, &de)

	var oe *store.OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "query_moves", oe.Op)

	_, err = s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2"})
	assert.ErrorIs(t, err, store.ErrCorrupt)
	assert.Equal(t, garbage, readFile(t, path), "corrupt file must not be overwritten")
}

func TestStoreFailedFlushLeavesFileIntact(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	_, err := s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2", Priority: 1})
	require.NoError(t, err)
	before := readFile(t, path)

	crash := errors.New("simulated crash")
	var tmpSeen string
	restore := store.SetBeforeRenameHook(func(tmpPath string) error {
		tmpSeen = tmpPath
		return crash
	})
	_, err = s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "b2e2", Priority: 2})
	restore()

	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIO)
	assert.ErrorIs(t, err, crash)
	assert.Equal(t, before, readFile(t, path))

	require.NotEmpty(t, tmpSeen)
	_, statErr := os.Stat(tmpSeen)
	assert.ErrorIs(t, statErr, fs.ErrNotExist, "temp file must be removed")

	moves, err := s.QueryMoves(startpos)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2e2"}, moveNames(moves))
}

func TestStoreConcurrentWriters(t *testing.T) {
	path := tempBookPath(t)
	const writers, perWriter = 8, 10

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		// Every writer gets its own handle, like separate callers would.
		s := newTestStore(t, path)
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				_, err := s.AddEntry(book.AddEntryRequest{
					FEN:     fmt.Sprintf("pos-%d", i%3),
					UCIMove: fmt.Sprintf("w%d-m%d", w, i),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats, err := newTestStore(t, path).GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(writers*perWriter), stats.TotalMoves)
	assert.Equal(t, uint64(3), stats.TotalPositions)
}

func TestStoreLockTimeout(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path, func(c *store.Config) { c.LockTimeout = 50 * time.Millisecond })

	release, err := store.Acquire(path)
	require.NoError(t, err)

	start := time.Now()
	_, err = s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrLocked)
	assert.Less(t, time.Since(start), 5*time.Second)

	release()

	_, err = s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2"})
	assert.NoError(t, err)
}

func TestStoreReadsWithoutLockFile(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)
	_, err := s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "h2e2", Priority: 3})
	require.NoError(t, err)

	// A directory in place of the lock file makes it impossible to open.
	require.NoError(t, os.Remove(path+".lock"))
	require.NoError(t, os.Mkdir(path+".lock", 0o755))

	moves, err := s.QueryMoves(startpos)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2e2"}, moveNames(moves))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalMoves)

	_, err = s.AddEntry(book.AddEntryRequest{FEN: startpos, UCIMove: "b2e2"})
	assert.ErrorIs(t, err, store.ErrIO)
	require.NoError(t, s.ExportDB(filepath.Join(t.TempDir(), "backup.jb")))
}

func TestStoreSymlinkedPathSharesLock(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	a, err := store.CanonicalPath(filepath.Join(target, "book.jb"))
	require.NoError(t, err)
	b, err := store.CanonicalPath(filepath.Join(link, "book.jb"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := store.New(store.Config{})
	assert.Error(t, err)

	_, err = store.New(store.Config{Path: tempBookPath(t), Compression: "ultra"})
	assert.Error(t, err)
}

package store_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jieqibox/openingbook/internal/book"
	"github.com/jieqibox/openingbook/internal/store"
)

func seedGoldenBook(t *testing.T, s *store.Store) {
	t.Helper()
	for _, req := range []book.AddEntryRequest{
		{FEN: "b w", UCIMove: "a1a2", Priority: 5, Wins: 1, Losses: 2, Allowed: true, Comment: "main line"},
		{FEN: "b w", UCIMove: "c3c4", Priority: 7},
		{FEN: "a w", UCIMove: "h2e2", Wins: 10, Draws: 5, Losses: 3, Allowed: true, Comment: "中炮"},
	} {
		_, err := s.AddEntry(req)
		require.NoError(t, err)
	}
}

func TestExportJSONGolden(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))
	seedGoldenBook(t, s)

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(&buf))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_all", buf.Bytes())
}

func TestExportJSONEmpty(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(&buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestExportImportJSONRoundTrip(t *testing.T) {
	src := newTestStore(t, tempBookPath(t))
	seedGoldenBook(t, src)

	var buf bytes.Buffer
	require.NoError(t, src.ExportJSON(&buf))

	dst := newTestStore(t, tempBookPath(t))
	imported, failures, err := dst.ImportJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Empty(t, failures)

	want, err := src.ExportAll()
	require.NoError(t, err)
	got, err := dst.ExportAll()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImportEntriesPartialFailure(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))

	imported, failures, err := s.ImportEntries([]book.Entry{{
		FEN: startpos,
		Moves: []book.Move{
			{UCIMove: "h2e2", Priority: 10, Allowed: true},
			{UCIMove: "", Priority: 5},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "failed to import move")
	assert.Contains(t, failures[0], "uci_move is required")

	moves, err := s.QueryMoves(startpos)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2e2"}, moveNames(moves))

	entries, err := s.ExportAll()
	require.NoError(t, err)
	assert.Equal(t, []book.Entry{{
		FEN:   startpos,
		Moves: []book.Move{{UCIMove: "h2e2", Priority: 10, Allowed: true}},
	}}, entries)
}

func TestImportEntriesCountsOverwrites(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))
	seedGoldenBook(t, s)

	imported, failures, err := s.ImportEntries([]book.Entry{{
		FEN:   "b w",
		Moves: []book.Move{{UCIMove: "c3c4", Priority: 1}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Empty(t, failures)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.TotalMoves)
}

func TestImportEntriesAllInvalidWritesNothing(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	imported, failures, err := s.ImportEntries([]book.Entry{
		{FEN: "", Moves: []book.Move{{UCIMove: "h2e2"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Len(t, failures, 1)

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestImportJSONMalformedMove(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))

	doc := `[{"fen":"x w","moves":[{"uci_move":"a0a1","priority":1},{"uci_move":"b0b1","wins":-1}]}]`
	imported, failures, err := s.ImportJSON(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "failed to decode move 1")
}

func TestImportJSONRejectsDocument(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))

	for _, doc := range []string{"", "{}", "not json", `[{"fen": 3}]`} {
		_, _, err := s.ImportJSON(strings.NewReader(doc))
		assert.ErrorIs(t, err, store.ErrValidation, "document %q", doc)
	}
}

func TestExportJSONFile(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))
	seedGoldenBook(t, s)

	var want bytes.Buffer
	require.NoError(t, s.ExportJSON(&want))

	dir := t.TempDir()
	out := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))
	require.NoError(t, s.ExportJSONFile(out))
	assert.Equal(t, want.Bytes(), readFile(t, out))

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1, "temp file left behind")
}

func TestExportJSONFileFailedWriteKeepsOld(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))
	seedGoldenBook(t, s)

	out := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(out, []byte("previous export"), 0o644))

	crash := errors.New("disk full")
	restore := store.SetBeforeRenameHook(func(string) error { return crash })
	err := s.ExportJSONFile(out)
	restore()

	assert.ErrorIs(t, err, store.ErrIO)
	assert.ErrorIs(t, err, crash)
	assert.Equal(t, "previous export", string(readFile(t, out)))
}

func TestExportImportDB(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)
	seedGoldenBook(t, s)

	backup := filepath.Join(t.TempDir(), "backup.jb")
	require.NoError(t, s.ExportDB(backup))
	assert.Equal(t, readFile(t, path), readFile(t, backup))

	want, err := s.ExportAll()
	require.NoError(t, err)

	_, err = s.AddEntry(book.AddEntryRequest{FEN: "c w", UCIMove: "i0i1"})
	require.NoError(t, err)
	require.NoError(t, s.ClearAll())

	require.NoError(t, s.ImportDB(backup))
	got, err := s.ExportAll()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImportDBMissingSource(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)
	seedGoldenBook(t, s)
	before := readFile(t, path)

	err := s.ImportDB(filepath.Join(t.TempDir(), "nope.jb"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, before, readFile(t, path))
}

func TestImportDBCorruptSourceSurfacesOnNextOp(t *testing.T) {
	path := tempBookPath(t)
	s := newTestStore(t, path)

	bad := filepath.Join(t.TempDir(), "bad.jb")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	require.NoError(t, s.ImportDB(bad))

	_, err := s.GetStats()
	assert.ErrorIs(t, err, store.ErrCorrupt)
}

func TestExportDBBeforeFirstWrite(t *testing.T) {
	s := newTestStore(t, tempBookPath(t))

	err := s.ExportDB(filepath.Join(t.TempDir(), "backup.jb"))
	assert.ErrorIs(t, err, store.ErrIO)
}

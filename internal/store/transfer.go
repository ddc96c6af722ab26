package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jieqibox/openingbook/internal/book"
)

// ImportEntries upserts every move of every entry in one transaction. A move
// that fails validation is skipped and reported in the returned error list;
// the rest are still imported. imported counts successful upserts, including
// overwrites of existing moves.
//
// The error return is reserved for whole-operation failures (lock, load,
// flush), in which case nothing was imported.
func (s *Store) ImportEntries(entries []book.Entry) (int, []string, error) {
	start := time.Now()
	var (
		imported int
		failures []string
	)
	err := s.update("import_entries", func(idx *Index) (bool, error) {
		var dirty bool
		for _, entry := range entries {
			for _, m := range entry.Moves {
				req := book.RequestFor(entry.FEN, m)
				if err := req.Validate(); err != nil {
					failures = append(failures, importFailure(entry.FEN, m.UCIMove, err))
					continue
				}
				if _, changed := idx.upsert(req.FEN, req.Move()); changed {
					dirty = true
				}
				imported++
			}
		}
		return dirty, nil
	})
	if err != nil {
		return 0, failures, err
	}

	s.log.Info().
		Str("path", s.path).
		Int("imported", imported).
		Int("failed", len(failures)).
		Dur("dur", time.Since(start)).
		Msg("entries imported")
	return imported, failures, nil
}

func importFailure(fen book.PositionKey, uciMove string, err error) string {
	return fmt.Sprintf("failed to import move %q for position %q: %v", uciMove, truncateKey(fen), err)
}

// jsonEntry mirrors book.Entry but leaves each move undecoded, so one bad
// move does not reject the whole document.
type jsonEntry struct {
	FEN   book.PositionKey  `json:"fen"`
	Moves []json.RawMessage `json:"moves"`
}

// ImportJSON reads a JSON array of entries (the ExportJSON format) and imports
// it like ImportEntries. A document that is not an array of entries fails
// with ErrValidation; a move that does not decode is reported per record.
func (s *Store) ImportJSON(r io.Reader) (int, []string, error) {
	const op = "import_json"
	var raw []jsonEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return 0, nil, s.opError(op, ErrValidation, fmt.Errorf("parse import document: %w", err))
	}

	var failures []string
	entries := make([]book.Entry, 0, len(raw))
	for _, re := range raw {
		entry := book.Entry{FEN: re.FEN, Moves: make([]book.Move, 0, len(re.Moves))}
		for i, rm := range re.Moves {
			var m book.Move
			if err := json.Unmarshal(rm, &m); err != nil {
				failures = append(failures, fmt.Sprintf("failed to decode move %d for position %q: %v", i, truncateKey(re.FEN), err))
				continue
			}
			entry.Moves = append(entry.Moves, m)
		}
		entries = append(entries, entry)
	}

	imported, importFailures, err := s.ImportEntries(entries)
	return imported, append(failures, importFailures...), err
}

// ExportJSON writes the whole book as an indented JSON array of entries.
// An empty book is written as [].
func (s *Store) ExportJSON(w io.Writer) error {
	entries, err := s.ExportAll()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return s.opError("export_json", ErrIO, err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return s.opError("export_json", ErrIO, err)
	}
	return nil
}

// ExportJSONFile writes the ExportJSON document to path, replacing any
// existing file atomically.
func (s *Store) ExportJSONFile(path string) error {
	var buf bytes.Buffer
	if err := s.ExportJSON(&buf); err != nil {
		return err
	}
	if err := writeFileAtomic(path, buf.Bytes(), s.sync); err != nil {
		return &OpError{Op: "export_json", Path: path, Kind: ErrIO, Err: err}
	}
	return nil
}

// ExportDB copies the database file byte-for-byte to dst. dst is replaced
// atomically. The book must have been written at least once.
func (s *Store) ExportDB(dst string) error {
	const op = "export_db"
	return s.locked(op, true, func() error {
		if err := copyFileAtomic(s.path, dst, s.sync); err != nil {
			return s.opError(op, ErrIO, err)
		}
		s.log.Debug().Str("path", s.path).Str("dst", dst).Msg("book exported")
		return nil
	})
}

// ImportDB replaces the database file with a byte-for-byte copy of src. The
// copy is not decoded; a bad source surfaces as ErrCorrupt on the next
// operation. The live book is only replaced once the copy is complete.
func (s *Store) ImportDB(src string) error {
	const op = "import_db"
	return s.locked(op, false, func() error {
		if err := copyFileAtomic(src, s.path, s.sync); err != nil {
			return s.opError(op, ErrIO, err)
		}
		s.log.Info().Str("path", s.path).Str("src", src).Msg("book restored")
		return nil
	})
}

// locked runs fn under the database lock without loading the book.
func (s *Store) locked(op string, readOnly bool, fn func() error) error {
	release, err := s.acquire(op, readOnly)
	if err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("book txn failed")
		return err
	}
	defer release()

	if err := fn(); err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("book txn failed")
		return err
	}
	return nil
}

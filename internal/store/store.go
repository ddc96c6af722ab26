package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/jieqibox/openingbook/internal/book"
)

// DefaultLockTimeout bounds how long an operation waits for the database lock.
const DefaultLockTimeout = 10 * time.Second

// Config configures the Store.
//
// Unless DisableProcessLock is set, every operation creates <Path>.lock next
// to the database, so writes need a writable directory. Read-only operations
// fall back to the in-process lock when that file cannot be created.
type Config struct {
	Path               string         // database file; need not exist yet
	Compression        string         // "none", "fastest", "default", "better" or "best" (default "default")
	LockTimeout        time.Duration  // default DefaultLockTimeout
	DisableProcessLock bool           // skip the advisory <path>.lock file lock
	NoSync             bool           // skip fsync of the temp file and directory on flush
	Logger             zerolog.Logger // transaction logging
}

// Store is a handle to one opening book file. It holds configuration and
// codec state only; every method reloads the file, so separate Stores (or
// processes) on the same file always see each other's committed writes.
//
// Store is safe for concurrent use.
type Store struct {
	path        string
	lockTimeout time.Duration
	processLock bool
	sync        bool

	encoder *zstd.Encoder // nil when compression is off
	decoder *zstd.Decoder

	log zerolog.Logger
}

// New creates a Store for cfg.Path. The file is not touched until the first
// operation.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: database path is required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Compression == "" {
		cfg.Compression = "default"
	}

	path, err := canonicalPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %s: %w", cfg.Path, err)
	}

	var encoder *zstd.Encoder
	if cfg.Compression != "none" {
		level, err := parseCompression(cfg.Compression)
		if err != nil {
			return nil, err
		}
		encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, err
		}
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		if encoder != nil {
			encoder.Close()
		}
		return nil, err
	}

	return &Store{
		path:        path,
		lockTimeout: cfg.LockTimeout,
		processLock: !cfg.DisableProcessLock,
		sync:        !cfg.NoSync,
		encoder:     encoder,
		decoder:     decoder,
		log:         cfg.Logger.With().Str("component", "book").Logger(),
	}, nil
}

// parseCompression maps a level name to a zstd encoder level.
func parseCompression(name string) (zstd.EncoderLevel, error) {
	switch name {
	case "fastest":
		return zstd.SpeedFastest, nil
	case "default":
		return zstd.SpeedDefault, nil
	case "better":
		return zstd.SpeedBetterCompression, nil
	case "best":
		return zstd.SpeedBestCompression, nil
	default:
		return 0, fmt.Errorf("store: unknown compression %q (want none, fastest, default, better or best)", name)
	}
}

// Path returns the canonical database path.
func (s *Store) Path() string {
	return s.path
}

// Close releases codec resources.
func (s *Store) Close() error {
	if s.encoder != nil {
		s.encoder.Close()
	}
	s.decoder.Close()
	return nil
}

// AddEntry upserts one move. It returns true if a new (position, move)
// identity was created and false if an existing move was overwritten.
func (s *Store) AddEntry(req book.AddEntryRequest) (bool, error) {
	const op = "add_entry"
	if err := req.Validate(); err != nil {
		return false, s.opError(op, ErrValidation, err)
	}

	var created bool
	err := s.update(op, func(idx *Index) (bool, error) {
		var changed bool
		created, changed = idx.upsert(req.FEN, req.Move())
		return changed, nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// DeleteEntry removes one move. It returns false, and leaves the file alone,
// if the pair did not exist.
func (s *Store) DeleteEntry(fen book.PositionKey, uciMove string) (bool, error) {
	var deleted bool
	err := s.update("delete_entry", func(idx *Index) (bool, error) {
		deleted = idx.Delete(fen, uciMove)
		return deleted, nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// QueryMoves returns the moves for fen in priority order, or an empty slice
// if the position is unknown.
func (s *Store) QueryMoves(fen book.PositionKey) ([]book.Move, error) {
	var moves []book.Move
	err := s.view("query_moves", func(idx *Index) error {
		moves = idx.Get(fen)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

// GetStats scans the whole book.
func (s *Store) GetStats() (book.Stats, error) {
	var stats book.Stats
	err := s.view("get_stats", func(idx *Index) error {
		stats = computeStats(idx)
		return nil
	})
	return stats, err
}

// ClearAll removes every position and persists the empty book.
func (s *Store) ClearAll() error {
	var removed int
	err := s.update("clear_all", func(idx *Index) (bool, error) {
		removed = idx.Positions()
		idx.Clear()
		return true, nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("path", s.path).Int("positions", removed).Msg("book cleared")
	return nil
}

// ExportAll returns the whole book: positions sorted by key, moves in
// priority order.
func (s *Store) ExportAll() ([]book.Entry, error) {
	var entries []book.Entry
	err := s.view("export_all", func(idx *Index) error {
		entries = idx.Entries()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// view runs fn against a freshly loaded index under the database lock.
func (s *Store) view(op string, fn func(*Index) error) error {
	return s.txn(op, true, func(idx *Index) (bool, error) {
		return false, fn(idx)
	})
}

func (s *Store) update(op string, fn func(*Index) (bool, error)) error {
	return s.txn(op, false, fn)
}

// txn is one open -> mutate -> flush cycle. The index is flushed only if
// fn reports a change. The lock is held for the whole cycle and released on
// every path.
func (s *Store) txn(op string, readOnly bool, fn func(*Index) (bool, error)) (err error) {
	start := time.Now()
	txn := uuid.NewString()
	log := s.log.With().Str("txn", txn).Str("op", op).Str("path", s.path).Logger()

	defer func() {
		if err != nil {
			log.Warn().Err(err).Dur("dur", time.Since(start)).Msg("book txn failed")
			return
		}
		log.Debug().Dur("dur", time.Since(start)).Msg("book txn completed")
	}()

	release, err := s.acquire(op, readOnly)
	if err != nil {
		return err
	}
	defer release()

	idx, err := s.load(op)
	if err != nil {
		return err
	}

	changed, err := fn(idx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	n, err := s.flush(op, idx)
	if err != nil {
		return err
	}
	log.Debug().
		Int("positions", idx.Positions()).
		Int("moves", idx.Moves()).
		Int("bytes", n).
		Msg("book flushed")
	return nil
}

// acquire takes the database lock for op. When the <path>.lock file cannot
// be opened, a read-only op proceeds under the in-process lock alone.
func (s *Store) acquire(op string, readOnly bool) (func(), error) {
	release, err := locks.acquire(s.path, s.lockTimeout, s.processLock)
	if err != nil && readOnly && s.processLock && errors.Is(err, ErrIO) {
		s.log.Warn().Err(err).Str("op", op).Str("path", s.path).Msg("file lock unavailable, reading without it")
		release, err = locks.acquire(s.path, s.lockTimeout, false)
	}
	if err != nil {
		var oe *OpError
		if errors.As(err, &oe) {
			oe.Op = op
		}
		return nil, err
	}
	return release, nil
}

// load reads and decodes the database file. A missing file is an empty book.
func (s *Store) load(op string) (*Index, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewIndex(), nil
		}
		return nil, s.opError(op, ErrIO, err)
	}
	idx, err := DecodeBook(data, s.decoder)
	if err != nil {
		return nil, s.opError(op, ErrCorrupt, err)
	}
	return idx, nil
}

// flush encodes idx and atomically replaces the database file.
func (s *Store) flush(op string, idx *Index) (int, error) {
	data, err := EncodeBook(idx, s.encoder)
	if err != nil {
		return 0, s.opError(op, ErrIO, err)
	}
	if err := writeFileAtomic(s.path, data, s.sync); err != nil {
		return 0, s.opError(op, ErrIO, err)
	}
	return len(data), nil
}

func (s *Store) opError(op string, kind, err error) *OpError {
	return &OpError{Op: op, Path: s.path, Kind: kind, Err: err}
}

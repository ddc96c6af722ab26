package store

import (
	"iter"
	"sort"

	"github.com/jieqibox/openingbook/internal/book"
)

// Index is the in-memory working set of one transaction: position key to
// moves. Moves are kept in first-insertion order; priority order is derived
// on read with a stable sort, so ties always fall back to insertion order.
//
// Index does no I/O and no locking; a transaction owns it exclusively.
type Index struct {
	positions map[book.PositionKey][]book.Move
	moves     int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		positions: make(map[book.PositionKey][]book.Move),
	}
}

// Get returns the moves for key in priority order. The result is a copy and
// is empty (never nil) when the key is unknown.
func (x *Index) Get(key book.PositionKey) []book.Move {
	stored := x.positions[key]
	out := make([]book.Move, len(stored))
	copy(out, stored)
	sortByPriority(out)
	return out
}

// Upsert inserts m under key, or overwrites every field of the move with the
// same notation. It returns true if a new move identity was created.
func (x *Index) Upsert(key book.PositionKey, m book.Move) bool {
	created, _ := x.upsert(key, m)
	return created
}

// upsert also reports whether the stored state changed at all.
func (x *Index) upsert(key book.PositionKey, m book.Move) (created, changed bool) {
	moves := x.positions[key]
	for i := range moves {
		if moves[i].UCIMove == m.UCIMove {
			if moves[i] == m {
				return false, false
			}
			moves[i] = m
			return false, true
		}
	}
	x.positions[key] = append(moves, m)
	x.moves++
	return true, true
}

// Delete removes the move with the given notation. Removing the last move of
// a position removes the position. It returns false if nothing matched.
func (x *Index) Delete(key book.PositionKey, uciMove string) bool {
	moves, ok := x.positions[key]
	if !ok {
		return false
	}
	for i := range moves {
		if moves[i].UCIMove != uciMove {
			continue
		}
		moves = append(moves[:i], moves[i+1:]...)
		if len(moves) == 0 {
			delete(x.positions, key)
		} else {
			x.positions[key] = moves
		}
		x.moves--
		return true
	}
	return false
}

// Clear empties the index.
func (x *Index) Clear() {
	x.positions = make(map[book.PositionKey][]book.Move)
	x.moves = 0
}

// Positions returns the number of distinct position keys.
func (x *Index) Positions() int {
	return len(x.positions)
}

// Moves returns the total number of move records.
func (x *Index) Moves() int {
	return x.moves
}

// Keys returns all position keys sorted bytewise.
func (x *Index) Keys() []book.PositionKey {
	keys := make([]book.PositionKey, 0, len(x.positions))
	for k := range x.positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All yields every (key, move) pair: keys sorted, moves in storage
// (first-insertion) order. The sequence can be ranged over repeatedly.
func (x *Index) All() iter.Seq2[book.PositionKey, book.Move] {
	return func(yield func(book.PositionKey, book.Move) bool) {
		for _, key := range x.Keys() {
			for _, m := range x.positions[key] {
				if !yield(key, m) {
					return
				}
			}
		}
	}
}

// Entries returns the whole book grouped by position: keys sorted, moves in
// priority order. This is the export view.
func (x *Index) Entries() []book.Entry {
	keys := x.Keys()
	entries := make([]book.Entry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, book.Entry{FEN: key, Moves: x.Get(key)})
	}
	return entries
}

// sortByPriority orders moves by priority, highest first, keeping the
// relative order of equal priorities.
func sortByPriority(moves []book.Move) {
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Priority > moves[j].Priority
	})
}

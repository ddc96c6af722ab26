// Package book defines the opening book data model shared by the store and
// the command layer.
package book

// PositionKey is a normalized Jieqi position string (FEN-like, including the
// hidden/revealed piece state). The store treats it as opaque: it is case and
// whitespace sensitive and never canonicalized.
type PositionKey = string

// Move is one candidate move for a position.
type Move struct {
	UCIMove  string `json:"uci_move"` // identity within a position
	Priority int32  `json:"priority"` // higher sorts first
	Wins     uint32 `json:"wins"`
	Draws    uint32 `json:"draws"`
	Losses   uint32 `json:"losses"`
	Allowed  bool   `json:"allowed"` // false hides the move without dropping its history
	Comment  string `json:"comment"`
}

// Count returns the total game count (wins + draws + losses).
func (m Move) Count() uint64 {
	return uint64(m.Wins) + uint64(m.Draws) + uint64(m.Losses)
}

// Entry groups every move stored under one position. It is the unit of
// JSON export and import.
type Entry struct {
	FEN   PositionKey `json:"fen"`
	Moves []Move      `json:"moves"`
}

// AddEntryRequest is an upsert of a single move. Counters are absolute values
// to store, not deltas.
type AddEntryRequest struct {
	FEN      PositionKey `json:"fen" validate:"required"`
	UCIMove  string      `json:"uci_move" validate:"required"`
	Priority int32       `json:"priority"`
	Wins     uint32      `json:"wins"`
	Draws    uint32      `json:"draws"`
	Losses   uint32      `json:"losses"`
	Allowed  bool        `json:"allowed"`
	Comment  string      `json:"comment"`
}

// Move returns the move record carried by the request.
func (r AddEntryRequest) Move() Move {
	return Move{
		UCIMove:  r.UCIMove,
		Priority: r.Priority,
		Wins:     r.Wins,
		Draws:    r.Draws,
		Losses:   r.Losses,
		Allowed:  r.Allowed,
		Comment:  r.Comment,
	}
}

// RequestFor builds the upsert request for a move under fen.
func RequestFor(fen PositionKey, m Move) AddEntryRequest {
	return AddEntryRequest{
		FEN:      fen,
		UCIMove:  m.UCIMove,
		Priority: m.Priority,
		Wins:     m.Wins,
		Draws:    m.Draws,
		Losses:   m.Losses,
		Allowed:  m.Allowed,
		Comment:  m.Comment,
	}
}

// Stats holds aggregate counts computed by scanning the whole book.
type Stats struct {
	TotalPositions uint64 `json:"total_positions"`
	TotalMoves     uint64 `json:"total_moves"`
	TotalWins      uint64 `json:"total_wins"`
	TotalDraws     uint64 `json:"total_draws"`
	TotalLosses    uint64 `json:"total_losses"`
	AllowedMoves   uint64 `json:"allowed_moves"`
}

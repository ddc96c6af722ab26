package store

import (
	"errors"

	"github.com/fxamacker/cbor/v2"

	"github.com/jieqibox/openingbook/internal/book"
)

// Record is a move together with the position that owns it. It is the unit
// the codec reads and writes.
type Record struct {
	Position book.PositionKey
	Move     book.Move
}

// wireRecord is the on-disk shape of a Record: a fixed 8-element CBOR array.
// Field order is part of the file format.
type wireRecord struct {
	_        struct{} `cbor:",toarray"`
	Position string
	UCIMove  string
	Priority int32
	Wins     uint32
	Draws    uint32
	Losses   uint32
	Allowed  bool
	Comment  string
}

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error
	recordEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	// Keys and comments are opaque; bytes that are not valid UTF-8 must
	// still round-trip.
	recordDecMode, err = cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeRecord encodes a single record.
func EncodeRecord(r Record) ([]byte, error) {
	return recordEncMode.Marshal(wireRecord{
		Position: r.Position,
		UCIMove:  r.Move.UCIMove,
		Priority: r.Move.Priority,
		Wins:     r.Move.Wins,
		Draws:    r.Move.Draws,
		Losses:   r.Move.Losses,
		Allowed:  r.Move.Allowed,
		Comment:  r.Move.Comment,
	})
}

// DecodeRecord decodes exactly one record. Truncated input, trailing bytes,
// a wrong element count or out-of-range counters all fail with a DecodeError.
func DecodeRecord(data []byte) (Record, error) {
	if len(data) == 0 {
		return Record{}, &DecodeError{Reason: "empty record"}
	}
	var w wireRecord
	if err := recordDecMode.Unmarshal(data, &w); err != nil {
		return Record{}, &DecodeError{Reason: "malformed record", Err: err}
	}
	if w.Position == "" {
		return Record{}, &DecodeError{Reason: "record has empty position key"}
	}
	if w.UCIMove == "" {
		return Record{}, &DecodeError{Reason: "record has empty move"}
	}
	return Record{
		Position: w.Position,
		Move: book.Move{
			UCIMove:  w.UCIMove,
			Priority: w.Priority,
			Wins:     w.Wins,
			Draws:    w.Draws,
			Losses:   w.Losses,
			Allowed:  w.Allowed,
			Comment:  w.Comment,
		},
	}, nil
}

// errTruncated marks input that ends inside a length prefix or payload.
var errTruncated = errors.New("unexpected end of data")

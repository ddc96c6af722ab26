package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Book file format
//
// File structure:
//   Header (32 bytes, little endian):
//     - Magic (4): "JQBK"
//     - Version (2): 1
//     - Flags (2): bit 0 = body is zstd-compressed
//     - PositionCount (4): distinct position keys
//     - RecordCount (4): move records
//     - BodyLen (4): uncompressed body length
//     - Checksum (4): CRC32 of uncompressed body
//     - Reserved (8)
//   Body:
//     - Records grouped by position key, keys in bytewise order, moves in
//       insertion order. Each record is uvarint(len) followed by len bytes of
//       CBOR (see EncodeRecord).
//
// A zero-length file is an empty book.

const (
	BookMagic      = "JQBK"
	BookVersion    = 1
	BookHeaderSize = 32

	flagZstd uint16 = 1 << 0
)

// BookHeader is the fixed-size file header.
type BookHeader struct {
	Magic         [4]byte
	Version       uint16
	Flags         uint16
	PositionCount uint32
	RecordCount   uint32
	BodyLen       uint32
	Checksum      uint32
	Reserved      [8]byte
}

// Compressed reports whether the body is zstd-compressed.
func (h *BookHeader) Compressed() bool {
	return h.Flags&flagZstd != 0
}

func encodeBookHeader(h *BookHeader) []byte {
	buf := make([]byte, BookHeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.PositionCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.RecordCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.BodyLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.Checksum)
	copy(buf[24:32], h.Reserved[:])
	return buf
}

func decodeBookHeader(buf []byte) (*BookHeader, error) {
	if len(buf) < BookHeaderSize {
		return nil, headerError(fmt.Sprintf("header too short: %d bytes", len(buf)), errTruncated)
	}
	h := &BookHeader{}
	copy(h.Magic[:], buf[0:4])
	if string(h.Magic[:]) != BookMagic {
		return nil, headerError(fmt.Sprintf("invalid magic %q", h.Magic), nil)
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != BookVersion {
		return nil, headerError(fmt.Sprintf("unsupported version %d", h.Version), nil)
	}
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	if h.Flags&^flagZstd != 0 {
		return nil, headerError(fmt.Sprintf("unknown flags %#04x", h.Flags), nil)
	}
	h.PositionCount = binary.LittleEndian.Uint32(buf[8:12])
	h.RecordCount = binary.LittleEndian.Uint32(buf[12:16])
	h.BodyLen = binary.LittleEndian.Uint32(buf[16:20])
	h.Checksum = binary.LittleEndian.Uint32(buf[20:24])
	copy(h.Reserved[:], buf[24:32])
	return h, nil
}

// EncodeBook encodes the whole index. A nil encoder writes the body
// uncompressed. The output is deterministic for a given index.
func EncodeBook(idx *Index, encoder *zstd.Encoder) ([]byte, error) {
	var body []byte
	var lenBuf [binary.MaxVarintLen64]byte
	for key, m := range idx.All() {
		rec, err := EncodeRecord(Record{Position: key, Move: m})
		if err != nil {
			return nil, fmt.Errorf("encode record %q/%q: %w", key, m.UCIMove, err)
		}
		n := binary.PutUvarint(lenBuf[:], uint64(len(rec)))
		body = append(body, lenBuf[:n]...)
		body = append(body, rec...)
	}
	if uint64(len(body)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("book body too large: %d bytes", len(body))
	}

	header := BookHeader{
		Version:       BookVersion,
		PositionCount: uint32(idx.Positions()),
		RecordCount:   uint32(idx.Moves()),
		BodyLen:       uint32(len(body)),
		Checksum:      crc32.ChecksumIEEE(body),
	}
	copy(header.Magic[:], BookMagic)

	payload := body
	if encoder != nil {
		header.Flags |= flagZstd
		payload = encoder.EncodeAll(body, nil)
	}

	out := make([]byte, 0, BookHeaderSize+len(payload))
	out = append(out, encodeBookHeader(&header)...)
	out = append(out, payload...)
	return out, nil
}

// DecodeBook decodes a whole file image into an index. Empty input yields an
// empty index. Every other defect is reported as a *DecodeError.
//
// A compressed body is streamed through decoder, so one decoder must not be
// used by concurrent DecodeBook calls.
func DecodeBook(data []byte, decoder *zstd.Decoder) (*Index, error) {
	idx := NewIndex()
	if len(data) == 0 {
		return idx, nil
	}

	header, err := decodeBookHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[BookHeaderSize:]
	if header.Compressed() {
		if decoder == nil {
			return nil, headerError("compressed body but no decoder", nil)
		}
		body, err = decompressBody(body, header.BodyLen, decoder)
		if err != nil {
			return nil, err
		}
	}

	if len(body) != int(header.BodyLen) {
		return nil, headerError(fmt.Sprintf("body size mismatch: got %d, want %d", len(body), header.BodyLen), errTruncated)
	}
	if crc32.ChecksumIEEE(body) != header.Checksum {
		return nil, headerError("checksum mismatch", nil)
	}

	var records uint32
	off := 0
	for off < len(body) {
		recLen, n := binary.Uvarint(body[off:])
		if n <= 0 {
			return nil, &DecodeError{Offset: off, Reason: "bad record length prefix", Err: errTruncated}
		}
		start := off + n
		if recLen == 0 || recLen > uint64(len(body)-start) {
			return nil, &DecodeError{Offset: off, Reason: fmt.Sprintf("record length %d exceeds remaining %d bytes", recLen, len(body)-start), Err: errTruncated}
		}
		end := start + int(recLen)

		rec, err := DecodeRecord(body[start:end])
		if err != nil {
			if de, ok := err.(*DecodeError); ok {
				de.Offset = start
			}
			return nil, err
		}
		if created, _ := idx.upsert(rec.Position, rec.Move); !created {
			return nil, &DecodeError{Offset: start, Reason: fmt.Sprintf("duplicate move %q for position %q", rec.Move.UCIMove, truncateKey(rec.Position))}
		}
		records++
		off = end
	}

	if records != header.RecordCount {
		return nil, headerError(fmt.Sprintf("record count mismatch: header %d, body %d", header.RecordCount, records), nil)
	}
	if uint32(idx.Positions()) != header.PositionCount {
		return nil, headerError(fmt.Sprintf("position count mismatch: header %d, body %d", header.PositionCount, idx.Positions()), nil)
	}
	return idx, nil
}

// minDecodeWindow is the largest zstd window accepted regardless of the
// declared body length. EncodeBook never exceeds it for small bodies.
const minDecodeWindow = 32 << 20

// decompressBody inflates a zstd body, reading at most one byte past the
// length the header declares. A frame that claims a larger size or window
// than the header allows is rejected before any output is produced.
func decompressBody(src []byte, bodyLen uint32, decoder *zstd.Decoder) ([]byte, error) {
	var fh zstd.Header
	if err := fh.Decode(src); err != nil {
		return nil, headerError("decompress body", err)
	}
	if fh.HasFCS && fh.FrameContentSize != uint64(bodyLen) {
		return nil, headerError(fmt.Sprintf("compressed frame declares %d bytes, header %d", fh.FrameContentSize, bodyLen), nil)
	}
	if fh.WindowSize > max(uint64(bodyLen), minDecodeWindow) {
		return nil, headerError(fmt.Sprintf("compressed frame window %d too large for %d byte body", fh.WindowSize, bodyLen), nil)
	}

	if err := decoder.Reset(bytes.NewReader(src)); err != nil {
		return nil, headerError("decompress body", err)
	}
	body, err := io.ReadAll(io.LimitReader(decoder, int64(bodyLen)+1))
	if err != nil {
		return nil, headerError("decompress body", err)
	}
	return body, nil
}

// ReadBookHeader decodes just the header from a file image.
func ReadBookHeader(data []byte) (*BookHeader, error) {
	return decodeBookHeader(data)
}

func truncateKey(key string) string {
	const limit = 64
	if len(key) <= limit {
		return key
	}
	return key[:limit] + "..."
}

// Package store provides the single-file opening book store.
//
// Every operation is one transaction against the database file:
//   - acquire the per-file lock (in-process semaphore plus optional advisory
//     file lock)
//   - load the whole file into an Index (a missing file is an empty book)
//   - apply the operation
//   - if the Index changed, encode it and atomically replace the file
//
// Book contents are never cached between operations.
//
// File Format (.jb):
//   - Header (32 bytes): magic "JQBK", version, flags, position and record
//     counts, body length and CRC32 of the uncompressed body
//   - Body (optionally zstd-compressed): uvarint length-prefixed CBOR records
//     grouped by position key in sorted key order, moves in insertion order
package store

// Export internal functions for testing
package store

import "hash/crc32"

// SetBeforeRenameHook installs fn to run just before a flush renames its temp
// file over the target. It returns a func that removes the hook.
func SetBeforeRenameHook(fn func(tmpPath string) error) func() {
	beforeRename = fn
	return func() { beforeRename = nil }
}

// CanonicalPath exports canonicalPath for testing
func CanonicalPath(path string) (string, error) {
	return canonicalPath(path)
}

// Acquire exports the shared lock registry for testing
func Acquire(path string) (func(), error) {
	p, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}
	return locks.acquire(p, DefaultLockTimeout, true)
}

// RawBook assembles an uncompressed file image around an arbitrary body,
// with a valid checksum and the given counts.
func RawBook(positions, records uint32, body []byte) []byte {
	h := BookHeader{
		Version:       BookVersion,
		PositionCount: positions,
		RecordCount:   records,
		BodyLen:       uint32(len(body)),
		Checksum:      crc32.ChecksumIEEE(body),
	}
	copy(h.Magic[:], BookMagic)
	return append(encodeBookHeader(&h), body...)
}

// RawCompressedBook wraps an already compressed body in a header that flags
// it as zstd and declares bodyLen uncompressed bytes.
func RawCompressedBook(bodyLen uint32, compressed []byte) []byte {
	h := BookHeader{
		Version: BookVersion,
		Flags:   flagZstd,
		BodyLen: bodyLen,
	}
	copy(h.Magic[:], BookMagic)
	return append(encodeBookHeader(&h), compressed...)
}

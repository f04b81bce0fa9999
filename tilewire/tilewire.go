// Package tilewire frames a node's color payload for residency in the
// main cache. Color imagery compresses well (a tile is mostly runs of
// similar pixels), so the fetcher stores it zstd-compressed and the
// renderer only decompresses it when a tile actually enters the cut,
// trading a small per-upload CPU cost for a smaller resident footprint.
//
// This is in-memory cache framing only, never the on-disk format: the
// quadtreefile record layout is frozen bit-exact for interop with the
// offline tile builder, so compression never touches disk.
package tilewire

import "github.com/klauspost/compress/zstd"

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Pack compresses raw color bytes for cache residency. Safe for
// concurrent use.
func Pack(raw []byte) []byte {
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
}

// Unpack restores the original byte slice, which was exactly size bytes
// before compression. Safe for concurrent use.
func Unpack(packed []byte, size int) ([]byte, error) {
	return decoder.DecodeAll(packed, make([]byte, 0, size))
}

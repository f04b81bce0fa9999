// Package quadtreefile implements the random-access on-disk tile store:
// a file header followed by fixed-size tile records addressed by a tile
// offset (a record index, not a TileIndex; the mapping from TileIndex to
// offset is established by walking down from the patch root, following
// child offsets cached in each parent record).
//
// The on-disk layout is frozen bit-exact so it interoperates with the
// external offline tile builder: little-endian throughout, fixed record
// size per layer, 4-byte child offsets with 0xFFFFFFFF as the "no child"
// sentinel.
package quadtreefile

import (
	"encoding/binary"
	"fmt"

	"github.com/blang/semver"
)

// InvalidTileIndex is the sentinel on-disk value meaning "no child tile
// at this position".
const InvalidTileIndex TileOffset = 0xFFFFFFFF

// TileOffset is a record index within one QuadtreeFile — not a byte
// position. Converting to a byte position (int64 arithmetic, so files
// far larger than 4 GiB are addressable even though each record's
// identity fits in 4 bytes) is the file's job, not the caller's.
type TileOffset uint32

// Layer selects which of the two parallel quadtree files (elevation or
// color) a QuadtreeFile stores.
type Layer uint8

const (
	Elevation Layer = iota
	Color
)

func (l Layer) String() string {
	if l == Elevation {
		return "elevation"
	}
	return "color"
}

// Resolution is the process-wide tile grid edge length; it must match
// the offline tile builder's.
const Resolution = 33

// formatMagic identifies the file as belonging to this engine.
var formatMagic = [4]byte{'C', 'R', 'T', 'F'}

// FormatVersion is the on-disk format version this build writes; its
// major version is the only one it can read. A file with any other major
// version makes Open fail with an unreadable-file-header error.
var FormatVersion = semver.MustParse("1.0.0")

const headerSize = 64 // fixed size, padded, so records start at a known offset

// fileHeader is the fixed-size preamble of a QuadtreeFile.
type fileHeader struct {
	Magic      [4]byte
	Major      uint16
	Minor      uint16
	Patch      uint16
	Layer      Layer
	Resolution uint32
	RecordSize uint32
	NumRecords uint32
}

func newFileHeader(layer Layer) fileHeader {
	return fileHeader{
		Magic:      formatMagic,
		Major:      uint16(FormatVersion.Major),
		Minor:      uint16(FormatVersion.Minor),
		Patch:      uint16(FormatVersion.Patch),
		Layer:      layer,
		Resolution: Resolution,
		RecordSize: uint32(recordSize(layer)),
	}
}

func (h fileHeader) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Major)
	binary.LittleEndian.PutUint16(buf[6:8], h.Minor)
	binary.LittleEndian.PutUint16(buf[8:10], h.Patch)
	buf[10] = byte(h.Layer)
	binary.LittleEndian.PutUint32(buf[12:16], h.Resolution)
	binary.LittleEndian.PutUint32(buf[16:20], h.RecordSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.NumRecords)
	return buf
}

func decodeFileHeader(buf []byte) (fileHeader, error) {
	var h fileHeader
	if len(buf) < headerSize {
		return h, fmt.Errorf("quadtreefile: truncated file header (%d bytes)", len(buf))
	}
	copy(h.Magic[:], buf[0:4])
	if h.Magic != formatMagic {
		return h, fmt.Errorf("quadtreefile: bad magic %q, not a quadtree file", h.Magic)
	}
	h.Major = binary.LittleEndian.Uint16(buf[4:6])
	h.Minor = binary.LittleEndian.Uint16(buf[6:8])
	h.Patch = binary.LittleEndian.Uint16(buf[8:10])
	h.Layer = Layer(buf[10])
	h.Resolution = binary.LittleEndian.Uint32(buf[12:16])
	h.RecordSize = binary.LittleEndian.Uint32(buf[16:20])
	h.NumRecords = binary.LittleEndian.Uint32(buf[20:24])
	if h.Major != uint16(FormatVersion.Major) {
		return h, fmt.Errorf("quadtreefile: file format major version %d unsupported (want %d)",
			h.Major, FormatVersion.Major)
	}
	if h.Resolution != Resolution {
		return h, fmt.Errorf("quadtreefile: file tile resolution %d != build resolution %d",
			h.Resolution, Resolution)
	}
	return h, nil
}

// elevationHeaderSize is the (min,max) float32 pair persisted per
// elevation tile.
const elevationHeaderSize = 8

// childOffsetsSize is the 4 x 4-byte child-offset block every record
// ends with, regardless of layer.
const childOffsetsSize = 4 * 4

func recordSize(layer Layer) int {
	switch layer {
	case Elevation:
		return elevationHeaderSize + Resolution*Resolution*4 + childOffsetsSize
	default:
		return Resolution*Resolution*3 + childOffsetsSize
	}
}

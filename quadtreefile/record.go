package quadtreefile

import (
	"encoding/binary"
	"math"
)

// Record is one decoded tile record: sample payload plus the offsets of
// its four children within the same file (InvalidTileIndex where absent).
type Record struct {
	Min, Max  float32 // elevation tiles only; zero for color
	Elevation []float32
	Color     []byte
	Children  [4]TileOffset
}

func newRecord(layer Layer) Record {
	switch layer {
	case Elevation:
		return Record{Elevation: make([]float32, Resolution*Resolution)}
	default:
		return Record{Color: make([]byte, Resolution*Resolution*3)}
	}
}

func (r Record) encode(layer Layer, buf []byte) {
	off := 0
	if layer == Elevation {
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(r.Min))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(r.Max))
		off = elevationHeaderSize
		for i, v := range r.Elevation {
			binary.LittleEndian.PutUint32(buf[off+i*4:off+i*4+4], math.Float32bits(v))
		}
		off += len(r.Elevation) * 4
	} else {
		copy(buf[off:off+len(r.Color)], r.Color)
		off += len(r.Color)
	}
	for i, c := range r.Children {
		binary.LittleEndian.PutUint32(buf[off+i*4:off+i*4+4], uint32(c))
	}
}

func decodeRecord(layer Layer, buf []byte) Record {
	r := newRecord(layer)
	off := 0
	if layer == Elevation {
		r.Min = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
		r.Max = math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
		off = elevationHeaderSize
		for i := range r.Elevation {
			r.Elevation[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+i*4 : off+i*4+4]))
		}
		off += len(r.Elevation) * 4
	} else {
		copy(r.Color, buf[off:off+len(r.Color)])
		off += len(r.Color)
	}
	for i := range r.Children {
		r.Children[i] = TileOffset(binary.LittleEndian.Uint32(buf[off+i*4 : off+i*4+4]))
	}
	return r
}

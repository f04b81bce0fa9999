package quadtreefile

import (
	"fmt"
	"os"
	"sync"

	"github.com/crustaterra/crusta/crerr"
)

// File is a random-access store of fixed-size tile records for one
// layer (every patch's quadtree), backed by a single OS file. All reads and
// writes are positioned (ReadAt/WriteAt) so concurrent callers
// never race over the file's seek cursor; the mutex below guards only
// the in-memory record count, not the underlying descriptor.
type File struct {
	mu     sync.Mutex
	f      *os.File
	layer  Layer
	size   int
	header fileHeader
}

// Create makes a new, empty quadtree file at path for the given layer.
func Create(path string, layer Layer) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, crerr.New("quadtreefile.Create", crerr.KindIO, err)
	}
	h := newFileHeader(layer)
	if _, err := f.WriteAt(h.encode(), 0); err != nil {
		f.Close()
		return nil, crerr.New("quadtreefile.Create", crerr.KindIO, err)
	}
	return &File{f: f, layer: layer, size: recordSize(layer), header: h}, nil
}

// Open opens an existing quadtree file, validating its header against
// the build's format version and tile resolution.
func Open(path string, layer Layer) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, crerr.New("quadtreefile.Open", crerr.KindIO, err)
	}
	buf := make([]byte, headerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, crerr.New("quadtreefile.Open", crerr.KindCorrupt, err)
	}
	h, err := decodeFileHeader(buf)
	if err != nil {
		f.Close()
		return nil, crerr.New("quadtreefile.Open", crerr.KindCorrupt, err)
	}
	if h.Layer != layer {
		f.Close()
		return nil, crerr.New("quadtreefile.Open", crerr.KindCorrupt,
			fmt.Errorf("file layer %s != requested %s", h.Layer, layer))
	}
	return &File{f: f, layer: layer, size: recordSize(layer), header: h}, nil
}

// Close releases the underlying file descriptor.
func (qf *File) Close() error {
	return qf.f.Close()
}

func (qf *File) byteOffset(off TileOffset) int64 {
	return int64(headerSize) + int64(off)*int64(qf.size)
}

// ReadTile reads the record at off. The InvalidTileIndex sentinel, or
// an offset beyond the allocated records, reports a missing tile rather
// than an I/O error: absent tiles are expected at dataset boundaries.
func (qf *File) ReadTile(off TileOffset) (Record, error) {
	if off == InvalidTileIndex || uint32(off) >= qf.NumRecords() {
		return Record{}, crerr.New("quadtreefile.ReadTile", crerr.KindMissingTile,
			fmt.Errorf("no record at offset %d", off))
	}
	buf := make([]byte, qf.size)
	if _, err := qf.f.ReadAt(buf, qf.byteOffset(off)); err != nil {
		return Record{}, crerr.New("quadtreefile.ReadTile", crerr.KindIO, err)
	}
	return decodeRecord(qf.layer, buf), nil
}

// AppendTile writes rec to a freshly allocated record and returns its
// offset. The engine's runtime path (DataManager, fetcher) only reads;
// AppendTile is how a dataset is written, e.g. by test fixtures.
func (qf *File) AppendTile(rec Record) (TileOffset, error) {
	qf.mu.Lock()
	off := TileOffset(qf.header.NumRecords)
	qf.header.NumRecords++
	hdr := qf.header
	qf.mu.Unlock()

	buf := make([]byte, qf.size)
	rec.encode(qf.layer, buf)
	if _, err := qf.f.WriteAt(buf, qf.byteOffset(off)); err != nil {
		return 0, crerr.New("quadtreefile.AppendTile", crerr.KindIO, err)
	}
	if _, err := qf.f.WriteAt(hdr.encode(), 0); err != nil {
		return 0, crerr.New("quadtreefile.AppendTile", crerr.KindIO, err)
	}
	return off, nil
}

// WriteChild patches the child-offset slot idx of the record at parent
// to point at child. This is how a parent record learns about a child
// tile that did not exist yet when the parent itself was written.
func (qf *File) WriteChild(parent TileOffset, idx int, child TileOffset) error {
	if idx < 0 || idx > 3 {
		return crerr.New("quadtreefile.WriteChild", crerr.KindInvariant,
			fmt.Errorf("child index %d out of range", idx))
	}
	childOffsetStart := qf.size - childOffsetsSize + idx*4
	buf := make([]byte, 4)
	buf[0] = byte(child)
	buf[1] = byte(child >> 8)
	buf[2] = byte(child >> 16)
	buf[3] = byte(child >> 24)
	at := qf.byteOffset(parent) + int64(childOffsetStart)
	if _, err := qf.f.WriteAt(buf, at); err != nil {
		return crerr.New("quadtreefile.WriteChild", crerr.KindIO, err)
	}
	return nil
}

// NumRecords reports how many tile records have been allocated so far.
func (qf *File) NumRecords() uint32 {
	qf.mu.Lock()
	defer qf.mu.Unlock()
	return qf.header.NumRecords
}

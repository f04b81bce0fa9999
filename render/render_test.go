package render

import (
	"testing"

	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/refine"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

type fakeUploader struct {
	uploads int
	draws   int
}

func (f *fakeUploader) UploadGeometry(*VideoTile, []scope.Vertex) error { f.uploads++; return nil }
func (f *fakeUploader) UploadHeight(*VideoTile, []float32) error       { return nil }
func (f *fakeUploader) UploadColor(*VideoTile, []byte) error           { return nil }
func (f *fakeUploader) Draw(*VideoTile, scope.Vertex) error            { f.draws++; return nil }

func cutOf(idx tileindex.TileIndex) refine.CutNode {
	n := &node.Node{Index: idx}
	return refine.CutNode{Node: n}
}

func TestDrawCutUploadsOnceThenReuses(t *testing.T) {
	up := &fakeUploader{}
	r := &Renderer{Video: tilecache.New[*VideoTile](4), Upload: up}

	cut := []refine.CutNode{cutOf(tileindex.Root(0))}
	r.DrawCut(cut, 1)
	r.DrawCut(cut, 2)

	if up.uploads != 1 {
		t.Errorf("uploads = %d, want 1 (uploaded once, reused second frame)", up.uploads)
	}
	if up.draws != 2 {
		t.Errorf("draws = %d, want 2 (one per frame)", up.draws)
	}
}

func TestDrawCutSkipsWhenSaturated(t *testing.T) {
	up := &fakeUploader{}
	cache := tilecache.New[*VideoTile](1)
	r := &Renderer{Video: cache, Upload: up}

	// Fill and pin the single slot with a different tile so the cut node
	// below cannot get a stream buffer this frame.
	buf, err := cache.GetStreamBuffer(1)
	if err != nil {
		t.Fatalf("GetStreamBuffer: %v", err)
	}
	cache.Assign(buf, tileindex.Root(9))
	cache.Commit(buf, &VideoTile{Index: tileindex.Root(9)})
	cache.Pin(buf, 1)

	cut := []refine.CutNode{cutOf(tileindex.Root(0))}
	r.DrawCut(cut, 1)

	if up.draws != 0 {
		t.Errorf("draws = %d, want 0: saturated cache must skip, not panic or propagate", up.draws)
	}
}

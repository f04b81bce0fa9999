package quadtreefile

import (
	"path/filepath"
	"testing"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elev")
	qf, err := Create(path, Elevation)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := newRecord(Elevation)
	rec.Min, rec.Max = -10, 2500
	for i := range rec.Elevation {
		rec.Elevation[i] = float32(i)
	}
	rec.Children = [4]TileOffset{InvalidTileIndex, InvalidTileIndex, InvalidTileIndex, InvalidTileIndex}

	off, err := qf.AppendTile(rec)
	if err != nil {
		t.Fatalf("AppendTile: %v", err)
	}
	if off != 0 {
		t.Fatalf("first offset = %d, want 0", off)
	}
	if err := qf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	qf2, err := Open(path, Elevation)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer qf2.Close()

	got, err := qf2.ReadTile(off)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if got.Min != rec.Min || got.Max != rec.Max {
		t.Errorf("Min/Max = %v/%v, want %v/%v", got.Min, got.Max, rec.Min, rec.Max)
	}
	for i := range got.Elevation {
		if got.Elevation[i] != rec.Elevation[i] {
			t.Fatalf("Elevation[%d] = %v, want %v", i, got.Elevation[i], rec.Elevation[i])
		}
	}
	for i := range got.Children {
		if got.Children[i] != InvalidTileIndex {
			t.Errorf("Children[%d] = %v, want InvalidTileIndex", i, got.Children[i])
		}
	}
}

func TestWriteChildPatchesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.color")
	qf, err := Create(path, Color)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer qf.Close()

	parent := newRecord(Color)
	parent.Children = [4]TileOffset{InvalidTileIndex, InvalidTileIndex, InvalidTileIndex, InvalidTileIndex}
	parentOff, err := qf.AppendTile(parent)
	if err != nil {
		t.Fatalf("AppendTile(parent): %v", err)
	}

	child := newRecord(Color)
	child.Children = [4]TileOffset{InvalidTileIndex, InvalidTileIndex, InvalidTileIndex, InvalidTileIndex}
	childOff, err := qf.AppendTile(child)
	if err != nil {
		t.Fatalf("AppendTile(child): %v", err)
	}

	if err := qf.WriteChild(parentOff, 2, childOff); err != nil {
		t.Fatalf("WriteChild: %v", err)
	}

	got, err := qf.ReadTile(parentOff)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if got.Children[2] != childOff {
		t.Errorf("Children[2] = %v, want %v", got.Children[2], childOff)
	}
	for i, c := range got.Children {
		if i != 2 && c != InvalidTileIndex {
			t.Errorf("Children[%d] = %v, want InvalidTileIndex (unpatched)", i, c)
		}
	}
}

func TestOpenRejectsWrongLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elev")
	qf, err := Create(path, Elevation)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	qf.Close()

	if _, err := Open(path, Color); err == nil {
		t.Fatalf("Open with mismatched layer: want error, got nil")
	}
}

func TestNumRecordsIncrements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elev")
	qf, err := Create(path, Elevation)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer qf.Close()

	for i := 0; i < 3; i++ {
		rec := newRecord(Elevation)
		rec.Children = [4]TileOffset{InvalidTileIndex, InvalidTileIndex, InvalidTileIndex, InvalidTileIndex}
		if _, err := qf.AppendTile(rec); err != nil {
			t.Fatalf("AppendTile %d: %v", i, err)
		}
	}
	if qf.NumRecords() != 3 {
		t.Errorf("NumRecords() = %d, want 3", qf.NumRecords())
	}
}

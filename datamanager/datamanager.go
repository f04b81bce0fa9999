// Package datamanager implements the owner of the two on-disk quadtree
// files and the synchronous root-load gate the rest of the engine
// depends on: the process refuses to start rendering until every patch
// root is resident.
package datamanager

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/crustaterra/crusta/crerr"
	"github.com/crustaterra/crusta/crlog"
	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tileindex"
	"github.com/crustaterra/crusta/tilecache"
)

// childOffsets is the per-tile pair of child pointer arrays read from a
// tile's elevation and color records, kept in an LRU keyed by the tile's
// TileIndex.
type childOffsets struct {
	Elevation [4]quadtreefile.TileOffset
	Color     [4]quadtreefile.TileOffset
}

// Manager owns the elevation and color QuadtreeFiles for the whole
// polyhedron (patch roots occupy the first NumPatches records of each
// file, in patch order) and the registry of known child offsets.
type Manager struct {
	elevation *quadtreefile.File
	color     *quadtreefile.File

	poly *scope.Polyhedron

	registryMu sync.Mutex
	registry   *lru.Cache

	readSem *semaphore.Weighted

	// globalRange, if non-nil, overrides every tile's own (min,max) pair
	// at load time with one dataset-wide range.
	globalRange *[2]float32
}

// SetGlobalRange installs a dataset-wide elevation range override,
// applied to every root and child tile loaded from this point on. A nil
// argument restores each tile's own recorded (min,max).
func (m *Manager) SetGlobalRange(r *[2]float32) {
	m.globalRange = r
}

// New wraps already-open elevation and color QuadtreeFiles for the
// given polyhedron. maxConcurrentReads bounds how many root/tile reads
// may be in flight at once across LoadRoots' parallel fan-out.
func New(elevation, color *quadtreefile.File, poly *scope.Polyhedron, registrySize int, maxConcurrentReads int64) *Manager {
	return &Manager{
		elevation: elevation,
		color:     color,
		poly:      poly,
		registry:  lru.New(registrySize),
		readSem:   semaphore.NewWeighted(maxConcurrentReads),
	}
}

// ReadElevation implements fetcher.Source.
func (m *Manager) ReadElevation(offset quadtreefile.TileOffset) (quadtreefile.Record, error) {
	return m.elevation.ReadTile(offset)
}

// ReadColor implements fetcher.Source.
func (m *Manager) ReadColor(offset quadtreefile.TileOffset) (quadtreefile.Record, error) {
	return m.color.ReadTile(offset)
}

// ChildOffsets looks up the known on-disk child offsets for parent. Only
// LoadRoots registers entries, so a non-root tile reports ok=false.
func (m *Manager) ChildOffsets(parent tileindex.TileIndex) (elevation, color [4]quadtreefile.TileOffset, ok bool) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	v, found := m.registry.Get(parent)
	if !found {
		return elevation, color, false
	}
	co := v.(childOffsets)
	return co.Elevation, co.Color, true
}

func (m *Manager) rememberChildOffsets(key tileindex.TileIndex, elevation, color [4]quadtreefile.TileOffset) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	m.registry.Add(key, childOffsets{Elevation: elevation, Color: color})
}

// LoadRoots loads the P patch roots into cache, one per patch, in
// parallel (bounded by the manager's read semaphore), and blocks until
// every one succeeds. The system refuses to start without all P roots
// resident: any single failure is reported as crerr.KindRootLoadFailed,
// which crerr.Fatal recognizes as unrecoverable.
func (m *Manager) LoadRoots(ctx context.Context, cache *tilecache.Cache[*node.Node], currentFrame int64) error {
	g, ctx := errgroup.WithContext(ctx)
	for patch := 0; patch < m.poly.NumPatches(); patch++ {
		patch := patch
		g.Go(func() error {
			if err := m.readSem.Acquire(ctx, 1); err != nil {
				return crerr.New("datamanager.LoadRoots", crerr.KindRootLoadFailed, err)
			}
			defer m.readSem.Release(1)
			return m.loadRoot(uint8(patch), cache, currentFrame)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

func (m *Manager) loadRoot(patch uint8, cache *tilecache.Cache[*node.Node], currentFrame int64) error {
	key := tileindex.Root(patch)
	buf, existed, err := cache.GetBuffer(key, currentFrame)
	if err != nil {
		return crerr.New("datamanager.loadRoot", crerr.KindRootLoadFailed, err)
	}
	if existed && buf.IsValid() {
		return nil
	}

	// A root may exist in only one layer (a dataset with no color
	// imagery, or color-only preview data); a record absent from one
	// file is tolerated, anything else fails the whole startup.
	offset := quadtreefile.TileOffset(patch)
	elevRec, elevErr := m.elevation.ReadTile(offset)
	if elevErr != nil && !isMissingTile(elevErr) {
		return crerr.New("datamanager.loadRoot", crerr.KindRootLoadFailed, elevErr)
	}
	colorRec, colorErr := m.color.ReadTile(offset)
	if colorErr != nil && !isMissingTile(colorErr) {
		return crerr.New("datamanager.loadRoot", crerr.KindRootLoadFailed, colorErr)
	}
	if elevErr != nil && colorErr != nil {
		return crerr.New("datamanager.loadRoot", crerr.KindRootLoadFailed, elevErr)
	}

	noChildren := [4]quadtreefile.TileOffset{
		quadtreefile.InvalidTileIndex, quadtreefile.InvalidTileIndex,
		quadtreefile.InvalidTileIndex, quadtreefile.InvalidTileIndex,
	}
	elevChildren, colorChildren := noChildren, noChildren
	var (
		elevMin, elevMax float32
		elevation        []float32
		color            []byte
	)
	if elevErr == nil {
		elevMin, elevMax = elevRec.Min, elevRec.Max
		elevation = elevRec.Elevation
		elevChildren = elevRec.Children
	}
	if colorErr == nil {
		color = colorRec.Color
		colorChildren = colorRec.Children
	}
	if elevation == nil {
		elevation = make([]float32, quadtreefile.Resolution*quadtreefile.Resolution)
	}
	if m.globalRange != nil {
		elevMin, elevMax = m.globalRange[0], m.globalRange[1]
	}

	n := &node.Node{
		Index:           key,
		Scope:           m.poly.RootScope(patch),
		DemTile:         offset,
		ChildDemTiles:   elevChildren,
		ColorTile:       offset,
		ChildColorTiles: colorChildren,
	}
	n.SetSamples(elevMin, elevMax, elevation, color, 1.0, currentFrame)

	cache.Commit(buf, n)
	cache.Touch(buf, currentFrame)
	cache.Pin(buf, currentFrame)

	m.rememberChildOffsets(key, elevChildren, colorChildren)
	crlog.Infof("datamanager: loaded root for patch %d", patch)
	return nil
}

func isMissingTile(err error) bool {
	var e *crerr.Error
	return errors.As(err, &e) && e.Kind == crerr.KindMissingTile
}

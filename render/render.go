// Package render implements the renderer glue: for each node in the
// current cut, ensure a GPU-side cache buffer exists, upload whatever
// changed since the last time this tile was resident, and issue one
// draw call per node using a shared vertex/index template.
//
// The actual GL calls are an external collaborator's responsibility;
// this package only defines the narrow Uploader contract the renderer
// drives and when it drives it (three 2-D textures per node plus the
// vector-overlay hook), without depending on any particular
// windowing/GL binding.
package render

import (
	"github.com/crustaterra/crusta/crlog"
	"github.com/crustaterra/crusta/refine"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

// GPUHandle is an opaque GL object name (texture, buffer, ...); render
// never interprets its value, only passes it back to Uploader.
type GPUHandle uint32

// VideoTile is the payload of the video (GPU) cache. The video tier
// uses the same eviction policy as the main tier, keyed by the same
// TileIndex, so this is just another CacheBuffer[T] payload.
type VideoTile struct {
	Index     tileindex.TileIndex
	Geometry  GPUHandle
	Height    GPUHandle
	Color     GPUHandle
	Uploaded  bool
}

// Uploader is the GL-facing contract the renderer drives. An external
// windowing/GL integration supplies the implementation; render only
// calls these methods in the fixed order UploadGeometry/UploadHeight/
// UploadColor (only on first residency or after eviction/reupload) then
// Draw (every frame a node is in the cut).
type Uploader interface {
	UploadGeometry(tile *VideoTile, positions []scope.Vertex) error
	UploadHeight(tile *VideoTile, elevation []float32) error
	UploadColor(tile *VideoTile, color []byte) error
	Draw(tile *VideoTile, centroid scope.Vertex) error
}

// OverlayBinder lets an external map-feature module bind its own 1-D +
// 2-D vector-overlay textures per cut node. Optional: a Renderer with a
// nil Overlay simply skips the hook.
type OverlayBinder interface {
	BindOverlay(tile tileindex.TileIndex) error
}

// Renderer binds cached textures and draws one node per cut entry.
type Renderer struct {
	Video   *tilecache.Cache[*VideoTile]
	Upload  Uploader
	Overlay OverlayBinder
}

// DrawCut uploads and draws every node in cut. A node the video cache
// cannot find room for this frame is silently skipped: cache saturation
// never propagates, it just means the viewer keeps showing whatever was
// drawn last for that area.
func (r *Renderer) DrawCut(cut []refine.CutNode, currentFrame int64) {
	for _, cn := range cut {
		vbuf, err := r.ensure(cn.Node.Index, currentFrame)
		if err != nil {
			crlog.Debugf("render: %v", err)
			continue
		}

		vt := vbuf.Payload
		if !vt.Uploaded {
			if err := r.upload(vt, cn); err != nil {
				crlog.Errorf("render: upload failed for %s: %v", cn.Node.Index, err)
				continue
			}
			vt.Uploaded = true
			r.Video.Commit(vbuf, vt)
		}

		r.Video.Touch(vbuf, currentFrame)
		r.Video.Pin(vbuf, currentFrame)

		if r.Overlay != nil {
			if err := r.Overlay.BindOverlay(cn.Node.Index); err != nil {
				crlog.Debugf("render: overlay bind failed for %s: %v", cn.Node.Index, err)
			}
		}

		if err := r.Upload.Draw(vt, cn.Node.Centroid); err != nil {
			crlog.Errorf("render: draw failed for %s: %v", cn.Node.Index, err)
		}
	}
}

func (r *Renderer) ensure(idx tileindex.TileIndex, currentFrame int64) (*tilecache.CacheBuffer[*VideoTile], error) {
	buf, existed, err := r.Video.GetBuffer(idx, currentFrame)
	if err != nil {
		return nil, err
	}
	if !existed {
		r.Video.Commit(buf, &VideoTile{Index: idx})
	}
	return buf, nil
}

func (r *Renderer) upload(vt *VideoTile, cn refine.CutNode) error {
	if err := r.Upload.UploadGeometry(vt, cn.Node.Positions); err != nil {
		return err
	}
	if err := r.Upload.UploadHeight(vt, cn.Node.Elevation); err != nil {
		return err
	}
	color, err := cn.Node.Color()
	if err != nil {
		return err
	}
	return r.Upload.UploadColor(vt, color)
}

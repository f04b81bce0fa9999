// Command crusta is the terrain engine's process entrypoint: it opens
// the elevation/color quadtree files, loads every patch root, then
// drives the frame loop until its context is canceled.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/crustaterra/crusta/config"
	"github.com/crustaterra/crusta/crerr"
	"github.com/crustaterra/crusta/crlog"
	"github.com/crustaterra/crusta/datamanager"
	"github.com/crustaterra/crusta/fetcher"
	"github.com/crustaterra/crusta/frame"
	"github.com/crustaterra/crusta/metrics"
	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/refine"
	"github.com/crustaterra/crusta/render"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
)

func main() {
	app := &cli.App{
		Name:        "crusta",
		Description: "adaptive quadtree terrain engine",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "load the terrain dataset and run the frame loop",
				Action: commandServe,
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  "config",
						Usage: "path to the TOML configuration file",
					},
					&cli.PathFlag{
						Name:  "dem",
						Usage: "path to the elevation quadtree file (overrides config)",
					},
					&cli.PathFlag{
						Name:  "color",
						Usage: "path to the color quadtree file (overrides config)",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "address to serve Prometheus metrics on, empty to disable",
						Value: ":9090",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if e, ok := err.(*crerr.Error); ok {
			if crerr.Fatal(e) {
				os.Exit(2)
			}
		}
		os.Exit(1)
	}
}

func commandServe(ctx *cli.Context) error {
	cfg := config.Default()
	if p := ctx.Path("config"); p != "" {
		var err error
		cfg, err = config.Load(p)
		if err != nil {
			return crerr.New("main.commandServe", crerr.KindIO, err)
		}
	}
	if p := ctx.Path("dem"); p != "" {
		cfg.Dem.Path = p
	}
	if p := ctx.Path("color"); p != "" {
		cfg.Color.Path = p
	}

	crlog.Configure(&cfg.Logging)
	crlog.SetMode(crlog.InfoMode)

	if addr := ctx.String("metrics-addr"); addr != "" {
		go serveMetrics(addr)
	}

	poly, err := scope.NewTriacontahedron()
	if err != nil {
		return crerr.New("main.commandServe", crerr.KindRootLoadFailed, err)
	}

	elevation, err := quadtreefile.Open(cfg.Dem.Path, quadtreefile.Elevation)
	if err != nil {
		return crerr.New("main.commandServe", crerr.KindRootLoadFailed, err)
	}
	defer elevation.Close()

	color, err := quadtreefile.Open(cfg.Color.Path, quadtreefile.Color)
	if err != nil {
		return crerr.New("main.commandServe", crerr.KindRootLoadFailed, err)
	}
	defer color.Close()

	dm := datamanager.New(elevation, color, poly, cfg.Cache.ChildOffsetRegistrySize, cfg.Cache.MaxConcurrentReads)
	if cfg.Dem.GlobalRange != nil {
		r := [2]float32{float32(cfg.Dem.GlobalRange[0]), float32(cfg.Dem.GlobalRange[1])}
		dm.SetGlobalRange(&r)
	}

	mainCache := tilecache.New[*node.Node](cfg.Cache.MainCapacity)
	mainCache.Name = "main"
	videoCache := tilecache.New[*render.VideoTile](cfg.Cache.VideoCapacity)
	videoCache.Name = "video"

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadTimer := metrics.RootLoadTimer()
	if err := dm.LoadRoots(runCtx, mainCache, 0); err != nil {
		loadTimer()
		return err
	}
	loadTimer()

	f := fetcher.New(mainCache, dm)
	f.SetVerticalScale(cfg.Refine.VerticalScale)
	if cfg.Dem.GlobalRange != nil {
		r := [2]float32{float32(cfg.Dem.GlobalRange[0]), float32(cfg.Dem.GlobalRange[1])}
		f.SetGlobalRange(&r)
	}

	cam := refine.Camera{
		Position:            scope.Vertex{X: 0, Y: 0, Z: 3},
		Focus:               scope.Vertex{X: 0, Y: 0, Z: 1},
		ScreenHeightPixels:  1080,
		VerticalFOVRadians:  1.0,
		PixelErrorTolerance: cfg.Refine.PixelErrorTolerance,
		FocusStrength:       cfg.Refine.FocusStrength,
	}
	frustum := refine.Frustum{} // every plane zero-valued: an always-visible frustum until a camera controller supplies real planes.
	walker := &refine.Walker{
		Cache:      mainCache,
		Visibility: frustum.Visibility,
		LOD:        refine.FocusWeightedLOD(cam),
	}

	renderer := &render.Renderer{
		Video:  videoCache,
		Upload: loggingUploader{},
	}

	driver := frame.New(mainCache, f, poly, walker, renderer, cfg.Refine.VerticalScale)
	go f.Run(runCtx, driver.CurrentFrame)

	sigCtx, stop := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	crlog.Infof("crusta: serving with %d patches, main cache=%d, video cache=%d", poly.NumPatches(), cfg.Cache.MainCapacity, cfg.Cache.VideoCapacity)
	for sigCtx.Err() == nil {
		driver.Advance()
		select {
		case <-sigCtx.Done():
		case <-time.After(16 * time.Millisecond):
		}
	}
	crlog.Infof("crusta: shutting down after frame %d", driver.CurrentFrame())
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		crlog.Errorf("main: metrics server stopped: %v", err)
	}
}

// loggingUploader is the engine's default Uploader: GL integration is
// an external concern, so running crusta without a real windowing layer
// still exercises every other stage of the frame loop and just logs
// what it would have uploaded/drawn.
type loggingUploader struct{}

func (loggingUploader) UploadGeometry(tile *render.VideoTile, positions []scope.Vertex) error {
	crlog.Debugf("render: upload geometry for %s (%d vertices)", tile.Index, len(positions))
	return nil
}

func (loggingUploader) UploadHeight(tile *render.VideoTile, elevation []float32) error {
	crlog.Debugf("render: upload height for %s (%d samples)", tile.Index, len(elevation))
	return nil
}

func (loggingUploader) UploadColor(tile *render.VideoTile, color []byte) error {
	crlog.Debugf("render: upload color for %s (%d bytes)", tile.Index, len(color))
	return nil
}

func (loggingUploader) Draw(tile *render.VideoTile, centroid scope.Vertex) error {
	crlog.Debugf("render: draw %s at %.3f,%.3f,%.3f", tile.Index, centroid.X, centroid.Y, centroid.Z)
	return nil
}

// Package config loads the engine's TOML configuration: a top-level
// struct of named tables, parsed with github.com/BurntSushi/toml, with
// paths given relative to the config file's own directory converted to
// absolute at load time.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/crustaterra/crusta/crlog"
)

// DemConfig configures the elevation dataset.
type DemConfig struct {
	Path string `toml:"path"`

	// GlobalRange, if set, overrides every tile's own (min,max) range
	// with a single dataset-wide elevation range; (-8000, 11000) covers
	// Earth. Nil means "use each tile's own computed range".
	GlobalRange *[2]float64 `toml:"global_range"`
}

// ColorConfig configures the color imagery dataset.
type ColorConfig struct {
	Path string `toml:"path"`
}

// CacheConfig sizes the main (RAM) and video (GPU) tile caches, in
// buffer count, plus how many concurrent disk reads the DataManager's
// startup root load may issue and how many records its child-offset
// registry holds.
type CacheConfig struct {
	MainCapacity            int   `toml:"main_capacity"`
	VideoCapacity           int   `toml:"video_capacity"`
	MaxConcurrentReads      int64 `toml:"max_concurrent_reads"`
	ChildOffsetRegistrySize int   `toml:"child_offset_registry_size"`
}

// PolyhedronConfig names which root polyhedron to use. Only
// "triacontahedron" (the default 30-face polyhedron) is built in;
// present as a table, not a bare string, so a future alternate
// polyhedron can add fields without breaking the TOML schema.
type PolyhedronConfig struct {
	Name string `toml:"name"`
}

// RefineConfig configures the LOD/visibility oracles (refine.FocusWeightedLOD).
type RefineConfig struct {
	PixelErrorTolerance float64 `toml:"pixel_error_tolerance"`
	FocusStrength       float64 `toml:"focus_strength"`
	VerticalScale       float64 `toml:"vertical_scale"`
}

// Config is the root of the engine's TOML configuration.
type Config struct {
	Dem        DemConfig        `toml:"dem"`
	Color      ColorConfig      `toml:"color"`
	Cache      CacheConfig      `toml:"cache"`
	Polyhedron PolyhedronConfig `toml:"polyhedron"`
	Refine     RefineConfig     `toml:"refine"`
	Logging    crlog.Config     `toml:"logging"`
}

// Default returns a Config with the engine's documented defaults, used
// when no config file is given and as the base before decoding one.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			MainCapacity:            512,
			VideoCapacity:           256,
			MaxConcurrentReads:      4,
			ChildOffsetRegistrySize: 4096,
		},
		Polyhedron: PolyhedronConfig{Name: "triacontahedron"},
		Refine: RefineConfig{
			PixelErrorTolerance: 4.0,
			FocusStrength:       2.0,
			VerticalScale:       1.0,
		},
	}
}

// Load decodes a TOML file at path into a Config seeded from Default,
// then converts its path-valued fields (Dem.Path, Color.Path,
// Logging.Logfile) to absolute paths relative to the config file's own
// directory.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := c.convertPathsToAbsolute(filepath.Dir(path)); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) convertPathsToAbsolute(configDir string) error {
	abs := func(p string) (string, error) {
		if p == "" || filepath.IsAbs(p) {
			return p, nil
		}
		return filepath.Join(configDir, p), nil
	}

	var err error
	if c.Dem.Path, err = abs(c.Dem.Path); err != nil {
		return fmt.Errorf("config: dem.path: %w", err)
	}
	if c.Color.Path, err = abs(c.Color.Path); err != nil {
		return fmt.Errorf("config: color.path: %w", err)
	}
	if c.Logging.Logfile, err = abs(c.Logging.Logfile); err != nil {
		return fmt.Errorf("config: logging.logfile: %w", err)
	}
	return nil
}

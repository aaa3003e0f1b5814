// Package config handles npp.toml runtime configuration.
//
// A configuration file tunes the virtual machine and logging:
//
//	[vm]
//	max_frames = 128
//
//	[gc]
//	threshold = 1048576
//	heap_limit = 0
//	stress = false
//
//	[log]
//	level = "warn"
//	format = "console"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/memory"
	"github.com/deepnoodle-ai/npp/vm"
)

// FileName is the configuration file searched for by FindAndLoad.
const FileName = "npp.toml"

// MaxFrames bounds vm.max_frames. Each frame reserves vm.SlotsPerFrame
// stack slots.
const MaxFrames = 4096

// Config represents an npp.toml file.
type Config struct {
	VM  VM  `toml:"vm"`
	GC  GC  `toml:"gc"`
	Log Log `toml:"log"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// VM configures the execution engine.
type VM struct {
	MaxFrames int `toml:"max_frames"`
}

// GC configures the allocator and collector.
type GC struct {
	Threshold int  `toml:"threshold"`
	HeapLimit int  `toml:"heap_limit"`
	Stress    bool `toml:"stress"`
}

// Log configures diagnostic output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		VM:  VM{MaxFrames: vm.DefaultMaxFrames},
		GC:  GC{Threshold: memory.DefaultThreshold},
		Log: Log{Level: "warn", Format: "console"},
	}
}

// Parse decodes and validates a configuration. Keys that are not
// recognized are reported as errors. Unset keys keep their defaults.
func Parse(data string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	var errs *multierror.Error
	for _, key := range md.Undecoded() {
		errs = errz.Append(errs, fmt.Errorf("unknown key %q", key.String()))
	}
	if err := c.Validate(); err != nil {
		errs = errz.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// FindAndLoad walks up from startDir looking for npp.toml and loads the
// first one found. It returns the defaults when there is none.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.VM.MaxFrames < 1 || c.VM.MaxFrames > MaxFrames {
		errs = errz.Append(errs, fmt.Errorf("vm.max_frames must be between 1 and %d, got %d",
			MaxFrames, c.VM.MaxFrames))
	}
	if c.GC.Threshold < 0 {
		errs = errz.Append(errs, fmt.Errorf("gc.threshold must not be negative, got %d", c.GC.Threshold))
	}
	if c.GC.HeapLimit < 0 {
		errs = errz.Append(errs, fmt.Errorf("gc.heap_limit must not be negative, got %d", c.GC.HeapLimit))
	}
	if _, err := c.Level(); err != nil {
		errs = errz.Append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = errz.Append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errs.ErrorOrNil()
}

// Level returns the configured log level.
func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level %q is not a valid level", c.Log.Level)
	}
	return level, nil
}

// Options maps the configuration onto virtual machine options.
func (c *Config) Options() []vm.Option {
	options := []vm.Option{
		vm.WithMaxFrames(c.VM.MaxFrames),
		vm.WithStressGC(c.GC.Stress),
	}
	if c.GC.Threshold > 0 {
		options = append(options, vm.WithGCThreshold(c.GC.Threshold))
	}
	if c.GC.HeapLimit > 0 {
		options = append(options, vm.WithHeapLimit(c.GC.HeapLimit))
	}
	return options
}

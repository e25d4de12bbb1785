// Package config loads and validates the data runloop configuration.
//
// Configuration is a YAML file decoded into a typed struct, then unified
// against an embedded CUE schema so invalid step budgets are rejected at
// load time rather than misbehaving at tick time.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config carries the engine's tunables. The step-budget fields are the
// cooperative work bounds applied per tick.
type Config struct {
	// ThreadedRunloop moves ticking onto a dedicated worker goroutine.
	ThreadedRunloop bool `yaml:"threaded_runloop" json:"threaded_runloop"`

	// QueueCapacity bounds each lane's command queue.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// NbioStepsPerTick is the number of file-read substeps per tick.
	NbioStepsPerTick int `yaml:"nbio_steps_per_tick" json:"nbio_steps_per_tick"`

	// PNGChunksPerTickDivisor sets the PNG chunk budget to
	// max(1, input_len/divisor) per tick.
	PNGChunksPerTickDivisor int `yaml:"png_chunks_per_tick_divisor" json:"png_chunks_per_tick_divisor"`

	// PNGProcessPerTickDivisor sets the pixel-processing budget to
	// max(1, input_len/divisor) per tick.
	PNGProcessPerTickDivisor int `yaml:"png_process_per_tick_divisor" json:"png_process_per_tick_divisor"`

	HTTP  HTTPConfig  `yaml:"http" json:"http"`
	Index IndexConfig `yaml:"index" json:"index"`
}

// HTTPConfig configures the HTTP lane's body sinks.
type HTTPConfig struct {
	// DownloadDir receives bodies dispatched to the download sink.
	DownloadDir string `yaml:"download_dir" json:"download_dir"`
}

// IndexConfig configures the offline content indexer.
type IndexConfig struct {
	DatabasePath string   `yaml:"database_path" json:"database_path"`
	ContentDirs  []string `yaml:"content_dirs" json:"content_dirs"`
}

// Default returns the built-in configuration: inline ticking with the
// engine's historical step budgets.
func Default() Config {
	return Config{
		ThreadedRunloop:          false,
		QueueCapacity:            8,
		NbioStepsPerTick:         5,
		PNGChunksPerTickDivisor:  2,
		PNGProcessPerTickDivisor: 4,
		HTTP:                     HTTPConfig{DownloadDir: "downloads"},
		Index: IndexConfig{
			DatabasePath: "content.db",
			ContentDirs:  nil,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate unifies the configuration with the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("config schema has no #Config definition")
	}

	unified := def.Unify(ctx.Encode(c))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config rejected by schema: %w", err)
	}
	return nil
}

// Package config loads the optimizer configuration from YAML. Command-line
// flags override individual fields after loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxFileSize bounds the configuration file size.
const MaxFileSize = 1 << 20

// Config is the complete optimizer configuration.
type Config struct {
	// Passes lists pass names in execution order.
	Passes []string `yaml:"passes"`
	// FixedPoint repeats the pass list until nothing changes.
	FixedPoint bool `yaml:"fixed_point"`
	// MaxRounds caps fixpoint iteration.
	MaxRounds int `yaml:"max_rounds"`
	// Jobs is the number of graphs optimized concurrently.
	Jobs int `yaml:"jobs"`

	Log         LogConfig   `yaml:"log"`
	PassOptions PassOptions `yaml:"pass_options"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PassOptions holds per-pass settings.
type PassOptions struct {
	DuplicateFanOut     DuplicateFanOutOptions     `yaml:"duplicate_fan_out"`
	GraphOutputIdentity GraphOutputIdentityOptions `yaml:"graph_output_identity"`
}

// DuplicateFanOutOptions maps op types to the input arities to duplicate.
type DuplicateFanOutOptions struct {
	Ops map[string][]int `yaml:"ops"`
}

// GraphOutputIdentityOptions names the domain whose graph outputs get an Identity.
type GraphOutputIdentityOptions struct {
	Domain string `yaml:"domain"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Passes:     []string{"duplicate_fan_out", "graph_output_identity"},
		FixedPoint: false,
		MaxRounds:  10,
		Jobs:       4,
		Log:        LogConfig{Level: "info", Format: "text"},
		PassOptions: PassOptions{
			DuplicateFanOut: DuplicateFanOutOptions{Ops: defaultDuplicateOps()},
			GraphOutputIdentity: GraphOutputIdentityOptions{
				Domain: "com.xilinx",
			},
		},
	}
}

func defaultDuplicateOps() map[string][]int {
	return map[string][]int{
		"DequantizeLinear": {2, 3},
		"QuantizeLinear":   {2, 3},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys are
// rejected. A configured ops map replaces the default one instead of merging.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config: %s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.PassOptions.DuplicateFanOut.Ops = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.PassOptions.DuplicateFanOut.Ops == nil {
		cfg.PassOptions.DuplicateFanOut.Ops = defaultDuplicateOps()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Passes) == 0 {
		errs = append(errs, fmt.Errorf("passes must not be empty"))
	}
	for i, p := range c.Passes {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("passes[%d] is blank", i))
		}
	}
	if c.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max_rounds must be at least 1, got %d", c.MaxRounds))
	}
	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be at least 1, got %d", c.Jobs))
	}
	if !contains(validLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q: use one of %v", c.Log.Level, validLevels))
	}
	if !contains(validFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q: use one of %v", c.Log.Format, validFormats))
	}
	for op, arities := range c.PassOptions.DuplicateFanOut.Ops {
		if len(arities) == 0 {
			errs = append(errs, fmt.Errorf("pass_options.duplicate_fan_out.ops[%s]: no arities", op))
		}
		for _, a := range arities {
			if a < 0 {
				errs = append(errs, fmt.Errorf("pass_options.duplicate_fan_out.ops[%s]: negative arity %d", op, a))
			}
		}
	}
	if c.PassOptions.GraphOutputIdentity.Domain == "" {
		errs = append(errs, fmt.Errorf("pass_options.graph_output_identity.domain must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func contains(set []string, v string) bool {
	v = strings.ToLower(v)
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

package ded

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-hclog"
)

// Options tunes a Program's runtime behavior (spec.md §6's "engine
// configuration" surface). Zero value is valid; withDefaults fills in
// anything left unset.
type Options struct {
	// IndexCacheSize bounds the per-predicate LRU used to memoize index
	// selection (spec.md §4.2). Zero selects the default of 256; a
	// negative value disables the cache (every call then recomputes
	// chooseIndex, which is cheap but not free).
	IndexCacheSize int `mapstructure:"index_cache_size"`

	// ContinueOnError keeps evaluating a Rules predicate's remaining rules
	// after one rule raises a RuleExecution error, instead of aborting the
	// predicate's update step early (spec.md §7, "a host may choose to
	// tolerate per-rule failures").
	ContinueOnError bool `mapstructure:"continue_on_error"`

	// LogLevel names an hclog level ("debug", "info", "warn", "off").
	// Empty means "info".
	LogLevel string `mapstructure:"log_level"`

	// Logger, if set, overrides the logger built from LogLevel. Hosts
	// embedding the engine in a larger hclog tree should set this instead
	// of LogLevel.
	Logger hclog.Logger `mapstructure:"-"`
}

func (o Options) withDefaults() Options {
	if o.IndexCacheSize == 0 {
		o.IndexCacheSize = 256
	}
	if o.Logger == nil {
		level := hclog.LevelFromString(o.LogLevel)
		if level == hclog.NoLevel {
			level = hclog.Info
		}
		o.Logger = hclog.New(&hclog.LoggerOptions{
			Name:   "ded",
			Level:  level,
			Output: os.Stderr,
		})
	}
	return o
}

// NewProgramFromConfig decodes cfg (e.g. parsed from JSON/YAML/TOML by the
// host) into Options via mapstructure, then builds a fresh Program. This
// is the seam hosts use when engine tuning lives in their own config file
// rather than being set in Go source.
func NewProgramFromConfig(cfg map[string]any) (*Program, error) {
	var opts Options
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, invalidProgramError("config: building decoder: %v", err)
	}
	if err := dec.Decode(cfg); err != nil {
		return nil, invalidProgramError("config: decoding options: %v", err)
	}
	return NewProgram(opts), nil
}

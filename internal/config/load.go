package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// ConfigPathEnv names the environment variable holding the config file path.
const ConfigPathEnv = "DRIVEPROXY_CONFIG"

// noDefaultsTag is a struct tag no field carries. Passing it as the default
// tag keeps envDefault values from overwriting file settings.
const noDefaultsTag = "configDefault"

// Load builds the configuration from defaults, the optional TOML file at
// path and the environment, in increasing precedence. environ overrides the
// process environment when non-nil. The result is not validated so that
// command-line flags can still be applied.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	opts := env.Options{DefaultValueTagName: noDefaultsTag}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

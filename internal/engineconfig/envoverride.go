package engineconfig

import (
	"errors"
	"fmt"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WORLD_BUILDER_"

// ApplyEnv overrides selected settings from environment variables read through lookup
// (os.LookupEnv in the binary). Unparsable values are skipped and reported together.
func (c *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	flag := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}

	str("WORLD_FILE", &c.WorldFile)
	str("LOG_FILE", &c.LogFile)
	flag("FULLSCREEN", &c.Window.Fullscreen)
	flag("WATCH_WORLD", &c.WatchWorld)
	num("LATENCY_MS", &c.Build.LatencyMS)
	num("TIMEOUT_MS", &c.Build.TimeoutMS)
	if v, ok := lookup(EnvPrefix + "SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Terrain.Seed = seed
		}
	}
	c.Validate()
	return errors.Join(errs...)
}

// Package luaconfig declares the environment-variable-bound configuration
// the luavm command layers underneath its flags: flags always win, the
// environment only supplies a default for whatever a flag leaves unset.
package luaconfig

import "github.com/caarlos0/env/v6"

// Config holds the settings that can be supplied via environment variables
// as an alternative to command-line flags.
type Config struct {
	// Version is the expected image version byte, given as "5.1" or "5.3".
	Version string `env:"LUAVM_VERSION" envDefault:"5.1"`

	// MaxSteps bounds dispatch-loop iterations; 0 means unbounded.
	MaxSteps int `env:"LUAVM_MAX_STEPS" envDefault:"0"`
}

// Load reads Config from the process environment, applying defaults for
// any variable that isn't set.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// VersionByte maps a "5.1"/"5.3"-style dotted version string to the
// major<<4|minor header byte the image format encodes.
func VersionByte(v string) (byte, error) {
	switch v {
	case "5.1":
		return 0x51, nil
	case "5.3":
		return 0x53, nil
	default:
		return 0, errUnsupportedVersion(v)
	}
}

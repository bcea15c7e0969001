// Package config loads the tunables for the idle-coordination runtime: the
// worker count, the two yield-count thresholds, and the yield-hint switch.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/taskmesh/idlecore/errors"
	"github.com/taskmesh/idlecore/toml"
)

const (
	// DefaultN is used when no worker count is configured.
	DefaultN = 4
	// DefaultRoundsUntilSleepy is the canonical worked-example threshold.
	DefaultRoundsUntilSleepy = 32
	// DefaultRoundsUntilAsleep is the canonical worked-example threshold.
	DefaultRoundsUntilAsleep = 64
	// DefaultStatsInterval is how often a running pool reports its stats.
	DefaultStatsInterval = 2 * time.Second
)

const (
	// ErrInvalidWorkerCount is returned when N is not a positive integer
	// that fits in the sleepy-slot bits of the state word.
	ErrInvalidWorkerCount errors.Code = "InvalidWorkerCount"
	// ErrInvalidThresholds is returned when RoundsUntilSleepy is not
	// strictly less than RoundsUntilAsleep.
	ErrInvalidThresholds errors.Code = "InvalidThresholds"
)

// maxWorkers is the largest N that leaves the sleepy slot representable:
// the slot packs (index+1)<<1 into a uint64 alongside the any-asleep bit in
// bit 0, so index+1 must fit in the remaining 63 bits.
const maxWorkers = 1<<63 - 1

// Config holds the idle-coordination runtime's tunables. Field names use a
// toml-tag convention so the same struct loads naturally from a TOML file,
// flags, or environment variables via viper.
type Config struct {
	N                 int           `toml:"workers"`
	RoundsUntilSleepy uint32        `toml:"rounds-until-sleepy"`
	RoundsUntilAsleep uint32        `toml:"rounds-until-asleep"`
	YieldHint         bool          `toml:"yield-hint"`
	StatsInterval     toml.Duration `toml:"stats-interval"`
}

// Default returns the recommended baseline configuration.
func Default() Config {
	return Config{
		N:                 DefaultN,
		RoundsUntilSleepy: DefaultRoundsUntilSleepy,
		RoundsUntilAsleep: DefaultRoundsUntilAsleep,
		YieldHint:         true,
		StatsInterval:     toml.Duration(DefaultStatsInterval),
	}
}

// Validate checks the two contract requirements the idle core assumes
// callers have already enforced: RoundsUntilSleepy < RoundsUntilAsleep, and
// N is a positive count that fits the state word's sleepy slot. Config
// loading is a system boundary, so unlike the core itself (which treats a
// bad threshold ordering as undefined misuse), this returns a coded error
// rather than panicking or corrupting state.
func (c Config) Validate() error {
	if c.N <= 0 || c.N > maxWorkers {
		return errors.New(ErrInvalidWorkerCount, "workers must be a positive integer that fits the state word")
	}
	if c.RoundsUntilSleepy >= c.RoundsUntilAsleep {
		return errors.New(ErrInvalidThresholds, "rounds-until-sleepy must be strictly less than rounds-until-asleep")
	}
	return nil
}

// BindFlags registers the configuration's flags on a pflag.FlagSet with the
// canonical defaults, then binds them to viper.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.Int("workers", d.N, "number of worker goroutines")
	flags.Uint32("rounds-until-sleepy", d.RoundsUntilSleepy, "consecutive fruitless scans before a worker becomes sleepy")
	flags.Uint32("rounds-until-asleep", d.RoundsUntilAsleep, "consecutive fruitless scans before a sleepy worker commits to block")
	flags.Bool("yield-hint", d.YieldHint, "issue a scheduler yield hint between fruitless scan rounds")
	flags.Duration("stats-interval", time.Duration(d.StatsInterval), "how often a running pool reports its stats")
}

// Load resolves a Config from flags, environment variables (prefixed
// IDLECORE_), and an optional TOML config file, in that priority order,
// file may be empty.
func Load(v *viper.Viper, flags *pflag.FlagSet, file string) (Config, error) {
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, errors.Wrap(err, "binding flags")
	}

	v.SetEnvPrefix("IDLECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading configuration file %q", file)
		}
	}

	cfg := Config{
		N:                 v.GetInt("workers"),
		RoundsUntilSleepy: uint32(v.GetUint32("rounds-until-sleepy")),
		RoundsUntilAsleep: uint32(v.GetUint32("rounds-until-asleep")),
		YieldHint:         v.GetBool("yield-hint"),
		StatsInterval:     toml.Duration(v.GetDuration("stats-interval")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/game"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

const ENV_PREFIX = "SKIRMISH_"

var ErrInvalid = errors.New("invalid config")

// merge reads one file over config. Only the keys present in the file
// change anything.
func merge(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		// JSON is a subset of YAML.
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil {
			return err
		}
		return nil
	case ".toml":
		meta, err := toml.Decode(string(data), config)
		if err != nil {
			return err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown key %s", undecoded[0])
		}
		return nil
	}

	return fmt.Errorf("not in a valid format")
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	config := Config{}
	if err := yaml.Unmarshal(DEFAULT, &config); err != nil {
		return nil, fmt.Errorf("invalid default config file: %w", err)
	}
	return &config, nil
}

// Process starts from the default configuration, merges the provided files
// in order, then applies SKIRMISH_* environment variables and validates
// the result.
func Process(configPaths []string) (*Config, error) {
	config, err := Default()
	if err != nil {
		return nil, err
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("could not process config file %s: does not exist", path)
		}

		if err := merge(config, path); err != nil {
			return nil, fmt.Errorf(
				"could not merge config file %s: %w",
				path,
				err,
			)
		}
	}

	err = env.ParseWithOptions(config, env.Options{Prefix: ENV_PREFIX})
	if err != nil {
		return nil, fmt.Errorf("could not read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate rejects values that cannot work and fills in defaults for the
// ones that were left empty.
func (c *Config) Validate() error {
	match := &c.Match

	if match.NumTeams < 1 {
		match.NumTeams = game.DefaultNumTeams
	}
	if match.NumTeams > 255 {
		return invalid("match.numTeams must be at most 255, got %d", match.NumTeams)
	}
	if match.PreGameSeconds < 1 {
		match.PreGameSeconds = game.DefaultPreGameSeconds
	}
	if match.GameSeconds < 1 {
		match.GameSeconds = game.DefaultGameSeconds
	}
	if match.BerserkSeconds < 0 || match.BerserkSeconds > match.GameSeconds {
		return invalid("match.berserkSeconds must be between 0 and %d", match.GameSeconds)
	}
	if match.Tick <= 0 {
		match.Tick = time.Second
	}
	if match.MaxHP < 1 {
		match.MaxHP = game.DefaultMaxHP
	}
	if match.RespawnDelay <= 0 {
		match.RespawnDelay = 5 * time.Second
	}
	if match.DestroyDelay <= 0 {
		match.DestroyDelay = 5 * time.Second
	}
	if match.PickupRespawn <= 0 {
		match.PickupRespawn = game.DefaultPickupRespawn
	}
	if match.Targets.WaveSize < 0 {
		return invalid("match.targets.waveSize must not be negative")
	}
	if match.Targets.WaveInterval <= 0 {
		match.Targets.WaveInterval = game.DefaultWaveInterval
	}
	if match.Targets.MinScore > match.Targets.MaxScore {
		return invalid(
			"match.targets.minScore (%d) is above maxScore (%d)",
			match.Targets.MinScore,
			match.Targets.MaxScore,
		)
	}
	for i, pickup := range match.Pickups {
		if pickup.HealAmount < 0 {
			return invalid("match.pickups[%d].healAmount must not be negative", i)
		}
	}

	for name, port := range map[string]int{
		"ingress.web.port":     c.Ingress.Web.Port,
		"ingress.desktop.port": c.Ingress.Desktop.Port,
	} {
		if port < 0 || port > 65535 {
			return invalid("%s %d is out of range", name, port)
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %s", err)
	}

	return nil
}

package gameserver

import (
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
)

type TargetConfig struct {
	WaveSize     int           `yaml:"waveSize" json:"waveSize" toml:"waveSize" env:"WAVE_SIZE"`
	WaveInterval time.Duration `yaml:"waveInterval" json:"waveInterval" toml:"waveInterval" env:"WAVE_INTERVAL"`
	MinScore     int32         `yaml:"minScore" json:"minScore" toml:"minScore"`
	MaxScore     int32         `yaml:"maxScore" json:"maxScore" toml:"maxScore"`
}

type PickupConfig struct {
	// HealAmount of 0 heals to full.
	HealAmount int32 `yaml:"healAmount" json:"healAmount" toml:"healAmount"`
}

type Config struct {
	Level          string            `yaml:"level" json:"level" toml:"level" env:"LEVEL"`
	NumTeams       int               `yaml:"numTeams" json:"numTeams" toml:"numTeams" env:"NUM_TEAMS"`
	PreGameSeconds int32             `yaml:"preGameSeconds" json:"preGameSeconds" toml:"preGameSeconds" env:"PREGAME_SECONDS"`
	GameSeconds    int32             `yaml:"gameSeconds" json:"gameSeconds" toml:"gameSeconds" env:"GAME_SECONDS"`
	BerserkSeconds int32             `yaml:"berserkSeconds" json:"berserkSeconds" toml:"berserkSeconds" env:"BERSERK_SECONDS"`
	Tick           time.Duration     `yaml:"tick" json:"tick" toml:"tick" env:"TICK"`
	MaxHP          int32             `yaml:"maxHP" json:"maxHP" toml:"maxHP" env:"MAX_HP"`
	NPCKillBonus   int32             `yaml:"npcKillBonus" json:"npcKillBonus" toml:"npcKillBonus" env:"NPC_KILL_BONUS"`
	RespawnDelay   time.Duration     `yaml:"respawnDelay" json:"respawnDelay" toml:"respawnDelay" env:"RESPAWN_DELAY"`
	DestroyDelay   time.Duration     `yaml:"destroyDelay" json:"destroyDelay" toml:"destroyDelay" env:"DESTROY_DELAY"`
	Weapons        []string          `yaml:"weapons" json:"weapons" toml:"weapons" env:"WEAPONS"`
	Targets        TargetConfig      `yaml:"targets" json:"targets" toml:"targets" envPrefix:"TARGETS_"`
	PickupRespawn  time.Duration     `yaml:"pickupRespawn" json:"pickupRespawn" toml:"pickupRespawn" env:"PICKUP_RESPAWN"`
	Pickups        []PickupConfig    `yaml:"pickups" json:"pickups" toml:"pickups"`
	SpawnPoints    []game.SpawnPoint `yaml:"spawnPoints" json:"spawnPoints" toml:"spawnPoints"`
	// Requests a client may submit per second, with RequestBurst on top.
	RequestRate  float64 `yaml:"requestRate" json:"requestRate" toml:"requestRate" env:"REQUEST_RATE"`
	RequestBurst int     `yaml:"requestBurst" json:"requestBurst" toml:"requestBurst" env:"REQUEST_BURST"`
}

func (c *Config) health() game.HealthConfig {
	return game.HealthConfig{
		MaxHP:        c.MaxHP,
		RespawnDelay: c.RespawnDelay,
		DestroyDelay: c.DestroyDelay,
		NPCKillBonus: c.NPCKillBonus,
	}
}

func (c *Config) lifecycle() game.LifecycleConfig {
	return game.LifecycleConfig{
		PreGameSeconds: c.PreGameSeconds,
		GameSeconds:    c.GameSeconds,
		BerserkSeconds: c.BerserkSeconds,
		Tick:           c.Tick,
	}
}

func (c *Config) targets() game.TargetConfig {
	return game.TargetConfig{
		WaveSize:     c.Targets.WaveSize,
		WaveInterval: c.Targets.WaveInterval,
		MinScore:     c.Targets.MinScore,
		MaxScore:     c.Targets.MaxScore,
	}
}

// DefaultConfig is a two-team match on the original timings.
func DefaultConfig() Config {
	return Config{
		Level:          "arena",
		NumTeams:       game.DefaultNumTeams,
		PreGameSeconds: game.DefaultPreGameSeconds,
		GameSeconds:    game.DefaultGameSeconds,
		BerserkSeconds: game.DefaultBerserkSeconds,
		Tick:           time.Second,
		MaxHP:          game.DefaultMaxHP,
		NPCKillBonus:   game.DefaultNPCKillBonus,
		RespawnDelay:   5 * time.Second,
		DestroyDelay:   5 * time.Second,
		Weapons:        []string{"rifle", "launcher"},
		Targets: TargetConfig{
			WaveSize:     game.DefaultWaveSize,
			WaveInterval: game.DefaultWaveInterval,
			MinScore:     1,
			MaxScore:     2,
		},
		PickupRespawn: game.DefaultPickupRespawn,
		RequestRate:   30,
		RequestBurst:  10,
	}
}

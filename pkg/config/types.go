package config

import (
	"github.com/cfoust/skirmish/pkg/gameserver"
	"github.com/cfoust/skirmish/pkg/store"
)

type WebIngress struct {
	Port int `yaml:"port" json:"port" toml:"port" env:"PORT"`
}

type ENetIngress struct {
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port" json:"port" toml:"port" env:"PORT"`
}

type Ingress struct {
	Web     WebIngress  `yaml:"web" json:"web" toml:"web" envPrefix:"WEB_"`
	Desktop ENetIngress `yaml:"desktop" json:"desktop" toml:"desktop" envPrefix:"DESKTOP_"`
}

type StoreSettings struct {
	// Path of the sqlite database for match results. Empty disables it.
	Database string `yaml:"database" json:"database" toml:"database" env:"DATABASE"`
	// The live scoreboard is only mirrored when an address is set.
	Redis store.RedisSettings `yaml:"redis" json:"redis" toml:"redis" envPrefix:"REDIS_"`
}

type LogSettings struct {
	Level string `yaml:"level" json:"level" toml:"level" env:"LEVEL"`
	// Also write JSON logs to this file, rotated by size.
	File       string `yaml:"file" json:"file" toml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB" toml:"maxSizeMB" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups" toml:"maxBackups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays" toml:"maxAgeDays" env:"MAX_AGE_DAYS"`
}

type Config struct {
	Match   gameserver.Config `yaml:"match" json:"match" toml:"match" envPrefix:"MATCH_"`
	Ingress Ingress           `yaml:"ingress" json:"ingress" toml:"ingress" envPrefix:"INGRESS_"`
	Store   StoreSettings     `yaml:"store" json:"store" toml:"store" envPrefix:"STORE_"`
	Log     LogSettings       `yaml:"log" json:"log" toml:"log" envPrefix:"LOG_"`
}

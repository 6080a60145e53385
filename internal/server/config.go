package server

import (
	"github.com/openlocale/openlocale/internal/github"
	"github.com/openlocale/openlocale/internal/snapshot"
)

const (
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRateLimit = "100-M"
)

type Config struct {
	HTTP     HTTPConfig      `yaml:"http" mapstructure:"http"`
	DBPath   string          `yaml:"db_path" mapstructure:"db_path"`
	GitHub   github.Config   `yaml:"github" mapstructure:"github"`
	Snapshot snapshot.Config `yaml:"snapshot" mapstructure:"snapshot"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	CertFile  string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile   string `yaml:"key_file" mapstructure:"key_file"`
	RateLimit string `yaml:"rate_limit" mapstructure:"rate_limit"`
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if c.HTTP.RateLimit == "" {
		c.HTTP.RateLimit = DefaultRateLimit
	}
	return nil
}

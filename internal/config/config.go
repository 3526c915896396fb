// Package config loads the process configuration from the environment.
package config

import (
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds every environment-derived setting this service needs.
type Config struct {
	// DataRoot is the absolute directory all API-visible paths live
	// under. Load does not create it; storage.New creates it if missing.
	DataRoot string `envconfig:"DATAROOT" default:"/tmp"`

	// ListenAddr is the address the HTTP server binds to. Unlike
	// DataRoot this is purely an external-collaborator concern, but it
	// has to come from somewhere.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
}

// Load reads Config from environment variables prefixed OFFCLOUD_, e.g.
// OFFCLOUD_DATAROOT and OFFCLOUD_LISTEN_ADDR.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("offcloud", &cfg); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	abs, err := filepath.Abs(cfg.DataRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve data root %q", cfg.DataRoot)
	}
	cfg.DataRoot = filepath.Clean(abs)
	return &cfg, nil
}

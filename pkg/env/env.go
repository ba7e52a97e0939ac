// Package env holds the process-wide collaborators: the schema factory,
// the property handler registry, the geometry codec set and the logger.
// One Env is built at startup and passed to every component.
package env

import (
	"github.com/rs/zerolog"

	"github.com/chazu/cadsync/internal/config"
	"github.com/chazu/cadsync/internal/logging"
	"github.com/chazu/cadsync/pkg/jcad"
	"github.com/chazu/cadsync/pkg/props"
	"github.com/chazu/cadsync/pkg/props/geometry"
)

type Env struct {
	Config   config.Config
	Factory  *jcad.Factory
	Props    *props.Registry
	Geometry *geometry.Set
	Log      zerolog.Logger
}

// New builds an Env with the built-in schemas, handlers and codecs and a
// logger configured by cfg.
func New(cfg config.Config) *Env {
	return build(cfg, logging.New(cfg.LogLevel, cfg.LogFormat))
}

// Nop is New with default configuration and a discarding logger.
func Nop() *Env {
	return build(config.Default(), zerolog.Nop())
}

func build(cfg config.Config, log zerolog.Logger) *Env {
	codecs := geometry.Default()
	return &Env{
		Config:   cfg,
		Factory:  jcad.DefaultFactory(),
		Props:    props.Default(codecs),
		Geometry: codecs,
		Log:      log,
	}
}

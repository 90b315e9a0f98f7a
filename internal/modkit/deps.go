// Package modkit provides module wiring and core deps
package modkit

import (
	"plexingest/internal/adapters/cdf"
	"plexingest/internal/adapters/plex"
	"plexingest/internal/platform/config"
	"plexingest/internal/platform/logger"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log  logger.Logger
	Cfg  config.Conf
	Plex *plex.Client
	DS   *plex.DataSource
	Raw  *cdf.Client
	Meta *cdf.Instances
}

// ZeroOK returns true when deps are safe to use with zero values in tests
// consumers should still nil check for optional clients
func (d Deps) ZeroOK() bool { return true }

package engine

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// config accumulates Option values before Engine construction.
type config struct {
	siteCount int
	varCount  int
	out       io.Writer
	logger    zerolog.Logger
	metrics   *Metrics
}

func defaultConfig() config {
	return config{
		siteCount: SiteCount,
		varCount:  VarCount,
		out:       os.Stdout,
		logger:    zerolog.Nop(),
	}
}

// Option configures a new Engine.
type Option func(*config)

// WithSiteCount overrides the SiteCount default, intended for tests
// exercising smaller configurations; the CLI never uses it.
func WithSiteCount(n int) Option {
	return func(c *config) { c.siteCount = n }
}

// WithVarCount overrides the VarCount default, same caveat as
// WithSiteCount.
func WithVarCount(n int) Option {
	return func(c *config) { c.varCount = n }
}

// WithOutput sets the writer every read/commit/abort/dump line is
// appended to. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// WithLogger sets the zerolog.Logger used for engine event logging
// (fail/recover/abort/deadlock). Defaults to a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics attaches a *Metrics instance the engine updates on every
// commit/abort/deadlock/site event. Defaults to nil (no metrics kept).
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

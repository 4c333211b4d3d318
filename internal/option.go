package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	stdout  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput replaces stdout as the primary log sink.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

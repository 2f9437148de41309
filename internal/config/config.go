package config

import (
	"fmt"
	"time"

	"github.com/wegman-software/osm-middle/internal/middle"
)

// Config holds the global configuration for a middle-layer import run. It
// is the one place command-line flags and file-based settings are
// gathered; everything downstream of cmd/ receives a value copied out of
// it rather than a pointer back into it (Design Note "process-wide option
// pointers").
type Config struct {
	// Input settings
	InputFile string

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Staging-layer options (spec.md 6)
	Append               bool
	Prefix               string
	TablespaceMain       string
	TablespaceIndex      string
	Unlogged             bool
	CacheMB              int
	Scale                int
	FixedPointCoords     bool
	FlatNodeCacheEnabled bool
	FlatNodePath         string
	DropTemp             bool
	AllocSparse          bool
	AllocDense           bool
	AllocLossy           bool

	// Logging and metrics
	Verbose         bool
	LogFile         string
	MetricsInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults, mirroring
// the teacher's DefaultConfig but trimmed to the middle layer's actual
// options surface.
func DefaultConfig() *Config {
	return &Config{
		DBHost:     "localhost",
		DBPort:     5432,
		DBName:     "osm",
		DBUser:     "postgres",
		DBPassword: "",
		DBSchema:   "public",

		Prefix:   "osm2pgsql",
		CacheMB:  800,
		Scale:    100,
		DropTemp: false,

		Verbose:         false,
		LogFile:         "",
		MetricsInterval: 30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string (libpq keyword
// format, the form pgx.Connect accepts directly).
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is usable before Start is called.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.FlatNodeCacheEnabled && c.FlatNodePath == "" {
		return fmt.Errorf("flat node cache path is required when flat node cache is enabled")
	}
	if c.CacheMB < 1 {
		return fmt.Errorf("cache must be at least 1 MiB")
	}
	return nil
}

// MiddleOptions builds the middle.Options value Controller.Start expects,
// the one point where Config's flat fields become the copied-once value
// every leaf component receives.
func (c *Config) MiddleOptions() middle.Options {
	opts := middle.Options{
		Append:               c.Append,
		Prefix:               c.Prefix,
		Unlogged:             c.Unlogged,
		CacheMB:              c.CacheMB,
		Scale:                c.Scale,
		FlatNodeCacheEnabled: c.FlatNodeCacheEnabled,
		FlatNodePath:         c.FlatNodePath,
		DropTemp:             c.DropTemp,
		ConnInfo:             c.ConnectionString(),
		AllocLossy:           c.AllocLossy,
	}
	opts.Tablespace.Data = c.TablespaceMain
	opts.Tablespace.Index = c.TablespaceIndex

	if c.FixedPointCoords {
		opts.CoordEncoding = middle.CoordFixedPoint
	} else {
		opts.CoordEncoding = middle.CoordDouble
	}

	switch {
	case c.AllocSparse:
		opts.AllocStrategy = middle.AllocSparse
	case c.AllocDense:
		opts.AllocStrategy = middle.AllocDense
	default:
		opts.AllocStrategy = middle.AllocChunkwise
	}

	return opts
}

package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osm-middle/internal/config"
	"github.com/wegman-software/osm-middle/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osm-middle",
	Short: "Staging layer for an OSM import pipeline",
	Long: `osm-middle is the middle/staging layer of an OSM import pipeline: a
three-tier node coordinate cache (RAM, mmap flat file, relational store)
plus way/relation staging and a pending-id second pass for dependent
reprocessing after edits.

Subcommands:
  load      bulk-load a .osm.pbf or .osc seed/change file through the
            bulk-load protocol
  replicate drain the pending tracker's second pass against an
            already-populated store`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")

	// Staging-layer options shared by load and replicate
	rootCmd.PersistentFlags().BoolVar(&cfg.Append, "append", cfg.Append, "Append to an existing, already-populated store instead of a fresh import")
	rootCmd.PersistentFlags().StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "Table name prefix")
	rootCmd.PersistentFlags().StringVar(&cfg.TablespaceMain, "tablespace-main", cfg.TablespaceMain, "Tablespace for data tables")
	rootCmd.PersistentFlags().StringVar(&cfg.TablespaceIndex, "tablespace-index", cfg.TablespaceIndex, "Tablespace for indexes")
	rootCmd.PersistentFlags().BoolVar(&cfg.Unlogged, "unlogged", cfg.Unlogged, "Create staging tables UNLOGGED (faster, not crash-safe)")
	rootCmd.PersistentFlags().IntVarP(&cfg.CacheMB, "cache", "C", cfg.CacheMB, "RAM node cache size in MiB")
	rootCmd.PersistentFlags().IntVarP(&cfg.Scale, "scale", "x", cfg.Scale, "Fixed-point coordinate scale factor")
	rootCmd.PersistentFlags().BoolVar(&cfg.FixedPointCoords, "fixed-point-coords", cfg.FixedPointCoords, "Store coordinates as scaled fixed-point integers instead of double precision")
	rootCmd.PersistentFlags().BoolVar(&cfg.FlatNodeCacheEnabled, "flat-nodes", cfg.FlatNodeCacheEnabled, "Use a persistent mmap flat file for node coordinates")
	rootCmd.PersistentFlags().StringVar(&cfg.FlatNodePath, "flat-nodes-file", cfg.FlatNodePath, "Path to the flat node cache file")
	rootCmd.PersistentFlags().BoolVar(&cfg.DropTemp, "drop", cfg.DropTemp, "Drop staging tables needed only for append mode after a fresh import")
	rootCmd.PersistentFlags().BoolVar(&cfg.AllocSparse, "alloc-sparse", cfg.AllocSparse, "Force sparse node cache allocation strategy")
	rootCmd.PersistentFlags().BoolVar(&cfg.AllocDense, "alloc-dense", cfg.AllocDense, "Force dense node cache allocation strategy")
	rootCmd.PersistentFlags().BoolVar(&cfg.AllocLossy, "alloc-lossy", cfg.AllocLossy, "Allow the RAM cache to evict under memory pressure instead of failing node writes once it is full")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}

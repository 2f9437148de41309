package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-middle/internal/logger"
	"github.com/wegman-software/osm-middle/internal/metrics"
	"github.com/wegman-software/osm-middle/internal/middle"
	"github.com/wegman-software/osm-middle/internal/osc"
	"github.com/wegman-software/osm-middle/internal/osmsource"
)

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Bulk-load a .osm.pbf seed file or a .osc change file into the staging store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg.InputFile = args[0]
		if err := cfg.Validate(); err != nil {
			exitWithError("invalid configuration", err)
		}
		if err := runLoad(context.Background(), cfg.InputFile); err != nil {
			exitWithError("load failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(ctx context.Context, filename string) error {
	log := logger.Get()

	store := middle.NewStore()
	ctrl := middle.NewController(store)

	opts := cfg.MiddleOptions()
	if err := ctrl.Start(ctx, opts); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	collector := metrics.NewCollector(cfg.MetricsInterval, log)
	go collector.Start(metricsCtx)

	start := time.Now()
	var err error

	switch {
	case strings.HasSuffix(filename, ".pbf"):
		if err = ctrl.BeginBulkLoad(ctx); err != nil {
			err = fmt.Errorf("begin bulk load: %w", err)
			break
		}
		loader := osmsource.NewPBFLoader(ctrl, log)
		err = loader.Load(ctx, filename)
		if endErr := ctrl.EndBulkLoad(ctx); err == nil && endErr != nil {
			err = fmt.Errorf("end bulk load: %w", endErr)
		}
		if err == nil {
			stats := loader.Stats()
			log.Info("pbf load complete",
				zap.Int64("nodes", stats.Nodes),
				zap.Int64("ways", stats.Ways),
				zap.Int64("relations", stats.Relations),
				zap.Duration("duration", time.Since(start).Round(time.Second)))
		}
	case strings.HasSuffix(filename, ".osc") || strings.HasSuffix(filename, ".osc.gz"):
		err = applyOSC(ctx, ctrl, log, filename)
	default:
		err = fmt.Errorf("unrecognized input extension for %q (expected .pbf, .osc, or .osc.gz)", filename)
	}

	cancelMetrics()

	if err != nil {
		_ = ctrl.Stop(ctx)
		return err
	}

	if err := ctrl.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := ctrl.Analyze(ctx); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := ctrl.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	log.Info("load finished", zap.Duration("total", time.Since(start).Round(time.Second)))
	return nil
}

// applyOSC applies a change file's nodes/ways/relations to ctrl, then drains
// the second pass ctrl.NodeChanged/WayChanged/RelationChanged just marked
// pending, in the same process and against the same Controller instance the
// diff was applied through. The original keeps iterate_ways/iterate_relations
// in the same middle_pgsql_t instance as the diff apply (original_source
// middle-pgsql.cpp:736-822, 925-1056) rather than splitting them across
// separate invocations. pending_ways/pending_rels only ever live in memory
// (middle-pgsql.cpp:1230 rebuilds both trackers fresh at process start) and
// are never expected to survive past this run (spec.md 7: "the pending set
// is rebuilt from a fresh diff, not recovered from memory").
func applyOSC(ctx context.Context, ctrl *middle.Controller, log *zap.Logger, filename string) error {
	parser := osc.NewParser()
	changes, errs := parser.ParseFile(ctx, filename)

	for change := range changes {
		if err := change.Apply(ctx, ctrl); err != nil {
			return fmt.Errorf("apply change: %w", err)
		}
	}

	if err := <-errs; err != nil {
		return err
	}

	stats := parser.Stats()
	log.Info("osc apply complete", zap.Int64("total_changes", stats.Total()))

	log.Info("second pass starting",
		zap.Uint64("pending_ways", ctrl.PendingWaysCount()),
		zap.Uint64("pending_relations", ctrl.PendingRelsCount()))

	if err := ctrl.BeginSecondPass(); err != nil {
		return fmt.Errorf("begin second pass: %w", err)
	}

	cb := logCallback{log: log}
	wayCount, err := ctrl.IterateWays(ctx, cb)
	if err != nil {
		return fmt.Errorf("iterate ways: %w", err)
	}
	relCount, err := ctrl.IterateRelations(ctx, cb)
	if err != nil {
		return fmt.Errorf("iterate relations: %w", err)
	}

	log.Info("second pass complete", zap.Int("ways", wayCount), zap.Int("relations", relCount))
	return nil
}

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-middle/internal/logger"
	"github.com/wegman-software/osm-middle/internal/metrics"
	"github.com/wegman-software/osm-middle/internal/middle"
)

// replicateCmd is a standalone entry point for the second pass. Ordinary
// `load <file>.osc` runs already drain their own pending marks inline (see
// applyOSC in load.go), since pending_ways/pending_rels are an in-process
// roaring64 bitmap (idtracker.go) that never outlives the invocation that
// populated it, matching the original's id_tracker, which is likewise
// rebuilt empty at the start of every run (original_source
// middle-pgsql.cpp:1230) rather than recovered across runs. Run replicate
// directly only when pending marks were produced by something other than a
// `load` invocation in this same process (e.g. an embedder driving the
// Controller itself); invoked as its own process against a store with no
// in-memory marks, it will correctly report and drain zero.
var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Drain the pending tracker's second pass against in-process pending marks",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg.Append = true
		if err := runReplicate(context.Background()); err != nil {
			exitWithError("replicate failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(replicateCmd)
}

// logCallback is the OutputCallback used when no downstream output stage
// is wired in: it logs what would have been emitted rather than silently
// discarding the second pass.
type logCallback struct {
	log *zap.Logger
}

func (l logCallback) WayCallback(ctx context.Context, w middle.ResolvedWay, exists bool) error {
	l.log.Debug("second pass way", zap.Int64("id", w.ID), zap.Bool("exists", exists))
	return nil
}

func (l logCallback) RelationCallback(ctx context.Context, r middle.Relation, exists bool) error {
	l.log.Debug("second pass relation", zap.Int64("id", r.ID), zap.Bool("exists", exists))
	return nil
}

func runReplicate(ctx context.Context) error {
	log := logger.Get()

	store := middle.NewStore()
	ctrl := middle.NewController(store)

	opts := cfg.MiddleOptions()
	if err := ctrl.Start(ctx, opts); err != nil {
		return err
	}

	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	collector := metrics.NewCollector(cfg.MetricsInterval, log)
	go collector.Start(metricsCtx)

	log.Info("second pass starting",
		zap.Uint64("pending_ways", ctrl.PendingWaysCount()),
		zap.Uint64("pending_relations", ctrl.PendingRelsCount()))

	if err := ctrl.BeginSecondPass(); err != nil {
		cancelMetrics()
		_ = ctrl.Stop(ctx)
		return err
	}

	cb := logCallback{log: log}
	start := time.Now()

	wayCount, err := ctrl.IterateWays(ctx, cb)
	if err != nil {
		cancelMetrics()
		_ = ctrl.Stop(ctx)
		return err
	}

	relCount, err := ctrl.IterateRelations(ctx, cb)
	if err != nil {
		cancelMetrics()
		_ = ctrl.Stop(ctx)
		return err
	}

	cancelMetrics()

	if err := ctrl.Stop(ctx); err != nil {
		return err
	}

	log.Info("second pass complete",
		zap.Int("ways", wayCount),
		zap.Int("relations", relCount),
		zap.Duration("duration", time.Since(start).Round(time.Second)))
	return nil
}

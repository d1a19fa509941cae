package faceindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RebuildStats summarises one rebuild.
type RebuildStats struct {
	Rows     int
	Skipped  int
	Duration time.Duration
}

// Rebuild reloads every embedding from the source and swaps in a new snapshot.
// On failure or timeout the previous snapshot stays published. Concurrent calls share
// a single rebuild, which runs detached from any one caller: a caller whose ctx ends
// gets ctx.Err() while the rebuild goes on for the others, bounded by RebuildTimeout.
func (ix *Index) Rebuild(ctx context.Context) (RebuildStats, error) {
	if err := ctx.Err(); err != nil {
		return RebuildStats{}, err
	}
	ch := ix.group.DoChan("rebuild", func() (any, error) {
		return ix.rebuild(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return RebuildStats{}, ctx.Err()
	case res := <-ch:
		stats, _ := res.Val.(RebuildStats)
		return stats, res.Err
	}
}

func (ix *Index) rebuild(ctx context.Context) (stats RebuildStats, err error) {
	start := time.Now()

	ix.mu.Lock()
	ix.rebuilding = true
	ix.journal = nil
	ix.mu.Unlock()

	defer func() {
		ix.mu.Lock()
		ix.rebuilding = false
		ix.journal = nil
		ix.mu.Unlock()

		stats.Duration = time.Since(start)
		ix.statusMu.Lock()
		ix.last = rebuildResult{at: start, duration: stats.Duration, skipped: stats.Skipped, err: err}
		ix.statusMu.Unlock()
		ix.opts.Metrics.RebuildFinished(stats.Duration, stats.Skipped, err)

		if err != nil {
			log.Error().Err(err).Msg("Face index: rebuild failed, keeping previous snapshot")
		} else {
			log.Info().Msgf("Face index: rebuilt with %d vectors (%d skipped) in %s",
				stats.Rows, stats.Skipped, stats.Duration.Round(time.Millisecond))
		}
	}()

	loadCtx := ctx
	if ix.opts.RebuildTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, ix.opts.RebuildTimeout)
		defer cancel()
	}

	recs, err := ix.source.List(loadCtx)
	if err != nil {
		return stats, fmt.Errorf("loading embeddings: %w", err)
	}
	s, skipped, err := buildSnapshot(loadCtx, recs, ix.opts.Dim, ix.opts.Kind)
	if err != nil {
		return stats, fmt.Errorf("building index: %w", err)
	}
	stats.Skipped = skipped
	if skipped > 0 {
		log.Warn().Msgf("Face index: skipped %d embeddings with a dimension other than %d or invalid values",
			skipped, ix.opts.Dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.publish(s); err != nil {
		return stats, err
	}
	stats.Rows = ix.cur.Load().rows()
	return stats, nil
}

// RunSync rebuilds the index every interval until ctx is cancelled, persisting each
// successful rebuild when a directory is configured.
func (ix *Index) RunSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ix.Rebuild(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				continue
			}
			if ix.opts.Dir == "" {
				continue
			}
			if err := ix.Persist(); err != nil {
				log.Error().Err(err).Msg("Face index: persist after periodic rebuild failed")
			}
		}
	}
}

// Package cleaner implements the two best-effort, idempotent cleanup
// operations that guarantee no task-commander container outlives the
// process: reclaiming orphans left by a previous run, and stopping every
// container the Commander currently has registered as running.
//
// Every per-container error is swallowed and logged rather than
// propagated, so one bad container never stops the rest from being
// reclaimed or stopped.
package cleaner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnicolasvega/taskcommander/pkg/log"
	"github.com/mnicolasvega/taskcommander/pkg/metrics"
	"github.com/mnicolasvega/taskcommander/pkg/runtime"
)

// ImageTagPrefix is the namespace Cleaner assumes no other tenant shares;
// it only ever touches containers whose image tag starts with this.
const ImageTagPrefix = "task-commander:"

// StopGrace is the grace period given to every stop before a forced
// removal, per the adapter contract.
const StopGrace = 5 * time.Second

// Cleaner removes containers through a runtime.ContainerRuntime.
type Cleaner struct {
	runtime runtime.ContainerRuntime
	logger  zerolog.Logger
}

// New constructs a Cleaner over rt.
func New(rt runtime.ContainerRuntime) *Cleaner {
	return &Cleaner{runtime: rt, logger: log.WithComponent("cleaner")}
}

// ReclaimOrphans stops and removes every container (any state) whose
// image tag starts with ImageTagPrefix, regardless of whether this
// process started it. It returns the short IDs it managed to clean up.
// A second call in succession returns an empty list, since nothing
// matching the prefix remains.
func (c *Cleaner) ReclaimOrphans(ctx context.Context) []string {
	handles, err := c.runtime.ListAll(ctx, ImageTagPrefix)
	if err != nil {
		c.logger.Error().Err(err).Msg("list containers for orphan reclaim failed")
		return nil
	}

	cleaned := c.stopAndRemove(ctx, handles, "orphan")
	metrics.CleanupCyclesTotal.Inc()
	return cleaned
}

// StopRunning stops and removes every handle in running, then empties
// the map. Same swallow-and-continue error discipline as ReclaimOrphans.
func (c *Cleaner) StopRunning(ctx context.Context, running map[string]runtime.Handle) []string {
	if len(running) == 0 {
		return nil
	}

	handles := make([]runtime.Handle, 0, len(running))
	for name := range running {
		handles = append(handles, running[name])
	}

	cleaned := c.stopAndRemove(ctx, handles, "shutdown")
	metrics.CleanupCyclesTotal.Inc()

	for name := range running {
		delete(running, name)
	}
	return cleaned
}

func (c *Cleaner) stopAndRemove(ctx context.Context, handles []runtime.Handle, reason string) []string {
	var cleaned []string
	for _, h := range handles {
		if err := c.runtime.Stop(ctx, h, StopGrace); err != nil {
			c.logger.Warn().Err(err).Str("container", h.ShortID).Msg("stop failed, attempting removal anyway")
		}
		if err := c.runtime.Remove(ctx, h); err != nil {
			c.logger.Warn().Err(err).Str("container", h.ShortID).Msg("remove failed")
			metrics.ContainersCleanedTotal.WithLabelValues(reason + "_failed").Inc()
			continue
		}
		metrics.ContainersCleanedTotal.WithLabelValues(reason).Inc()
		cleaned = append(cleaned, h.ShortID)
	}
	return cleaned
}

package ingest

import (
	"context"
	"fmt"
	"time"
)

const rescanLockTTL = 5 * time.Minute

// RunRescan drains the rescan queue once: each popped range is re-scanned
// under a distributed lock so concurrent workers never replay the same
// window. Ranges that fail again are pushed back for a later drain.
func (l *Loop) RunRescan(ctx context.Context) error {
	if l.rescan == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start, end, found, err := l.rescan.PopRange(ctx)
		if err != nil {
			return fmt.Errorf("failed to pop rescan range: %w", err)
		}
		if !found {
			return nil
		}

		locked, err := l.rescan.AcquireLock(ctx, start, end, rescanLockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire rescan lock: %w", err)
		}
		if !locked {
			// Another worker holds it; put the range back and stop this drain.
			if pushErr := l.rescan.PushRange(ctx, start, end); pushErr != nil {
				l.log.Error("Failed to requeue locked range", "error", pushErr)
			}
			return nil
		}

		l.log.Info("Rescanning range", "start", start, "end", end)
		failedBlocks, scanErr := l.scanWindow(ctx, start, end)

		if releaseErr := l.rescan.ReleaseLock(ctx, start, end); releaseErr != nil {
			l.log.Error("Failed to release rescan lock", "error", releaseErr)
		}
		if scanErr != nil {
			return fmt.Errorf("rescan of [%d, %d]: %w", start, end, scanErr)
		}
		if len(failedBlocks) > 0 {
			l.log.Warn("Rescan still incomplete, requeueing",
				"start", start, "end", end, "failed_blocks", len(failedBlocks))
			if pushErr := l.rescan.PushRange(ctx, start, end); pushErr != nil {
				l.log.Error("Failed to requeue range", "error", pushErr)
			}
			return nil
		}
	}
}

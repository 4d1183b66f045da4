package tasks

import (
	"context"
	"fmt"
	"time"
)

// maintenanceTimeout bounds a single maintenance run. VACUUM on a large
// sqlite file can take a while.
const maintenanceTimeout = 5 * time.Minute

// newBackendMaintenanceTask creates the task that compacts the backend.
func newBackendMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "backend_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled backend maintenance task...")
		startTime := time.Now()

		runCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
		defer cancel()

		err := deps.Backend.RunMaintenance(runCtx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Backend maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("backend maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled backend maintenance task completed successfully", "duration", duration)
		return nil
	}
}

// newLeaseCleanupTask creates the task that deletes conversation locks
// left behind by processes that died while holding them.
func newLeaseCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "lease_cleanup")

	return func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, deps.Config.Database.OperationTimeout)
		defer cancel()

		removed, err := deps.Backend.PurgeExpiredLeases(opCtx)
		if err != nil {
			log.ErrorContext(ctx, "Lease cleanup failed", "error", err)
			return fmt.Errorf("lease cleanup failed: %w", err)
		}

		if removed > 0 {
			log.InfoContext(ctx, "Removed expired leases", "count", removed)
		} else {
			log.DebugContext(ctx, "No expired leases found")
		}
		return nil
	}
}

package provision

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/models"
)

const (
	defaultReconcileInterval = 3 * time.Minute
	// pendingRequeueDelay keeps the reconciler from racing a just-created
	// tenant whose enqueue is still in flight.
	pendingRequeueDelay = 5 * time.Minute
	// stuckSeedingDeadline bounds how long a tenant may sit in Seeding before
	// it is declared failed. A crashed worker otherwise leaves it stuck forever.
	stuckSeedingDeadline = 30 * time.Minute

	defaultStepRetentionDays = 90
	stepDeleteBatchSize      = 1000
	maxDeleteBatchesPerRun   = 100
)

// Reconciler is the repair loop behind the provisioning queue. The queue is
// in-memory, so a restart drops whatever was enqueued; the reconciler
// re-derives the work from registry state instead of trusting the queue. It
// also prunes old step history so the audit table does not grow without bound.
type Reconciler struct {
	db            *gorm.DB
	worker        *Worker
	interval      time.Duration
	retentionDays int
}

// NewReconciler constructs a reconciler with default timings.
func NewReconciler(db *gorm.DB, worker *Worker) *Reconciler {
	if db == nil || worker == nil {
		return nil
	}
	return &Reconciler{
		db:            db,
		worker:        worker,
		interval:      defaultReconcileInterval,
		retentionDays: defaultStepRetentionDays,
	}
}

// Start launches the reconcile loop in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("provisioning reconciler started (interval=%s)", r.interval)
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.reconcileOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	if r == nil || r.db == nil {
		return
	}
	r.requeueStalePending(ctx)
	r.failStuckSeeding(ctx)
	r.pruneStepHistory(ctx)
}

// requeueStalePending re-enqueues tenants that stayed Pending past the grace
// period, which happens when the original enqueue hit a full queue or the
// process restarted before the worker drained it.
func (r *Reconciler) requeueStalePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-pendingRequeueDelay)

	var rows []models.Tenant
	if errFind := r.db.WithContext(ctx).
		Select("id").
		Where("status = ? AND updated_at < ?", models.TenantStatusPending, cutoff).
		Order("updated_at ASC").
		Find(&rows).Error; errFind != nil {
		log.WithError(errFind).Warn("provisioning reconciler: load stale pending failed")
		return
	}

	for _, row := range rows {
		if errEnqueue := r.worker.Enqueue(row.ID); errEnqueue != nil {
			if errors.Is(errEnqueue, ErrQueueFull) {
				// The rest will be picked up next cycle.
				return
			}
			log.WithError(errEnqueue).Warnf("provisioning reconciler: requeue failed (tenant=%s)", row.ID)
			return
		}
		log.Infof("provisioning reconciler: requeued stale pending tenant (tenant=%s)", row.ID)
	}
}

// failStuckSeeding marks tenants as failed after they exceed the seeding
// deadline, making them visible to operators and eligible for retry.
func (r *Reconciler) failStuckSeeding(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-stuckSeedingDeadline)

	res := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("status = ? AND updated_at < ?", models.TenantStatusSeeding, cutoff).
		Updates(map[string]any{
			"status":     models.TenantStatusFailed,
			"last_error": "provisioning exceeded deadline",
		})
	if res.Error != nil {
		log.WithError(res.Error).Warn("provisioning reconciler: fail stuck seeding failed")
		return
	}
	if res.RowsAffected > 0 {
		log.Warnf("provisioning reconciler: marked %d stuck tenants failed (deadline=%s)", res.RowsAffected, stuckSeedingDeadline)
	}
}

// pruneStepHistory deletes finalized step records older than the retention
// window, in bounded batches so no run holds a long transaction.
func (r *Reconciler) pruneStepHistory(ctx context.Context) {
	if r.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)

	deletedTotal := int64(0)
	for i := 0; i < maxDeleteBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return
		}
		n, errDelete := r.deleteStepBatch(ctx, cutoff)
		if errDelete != nil {
			log.WithError(errDelete).Warn("provisioning reconciler: prune batch failed")
			break
		}
		if n <= 0 {
			break
		}
		deletedTotal += n
	}
	if deletedTotal > 0 {
		log.Infof("provisioning reconciler: pruned %d step records (cutoff=%s)", deletedTotal, cutoff.Format(time.RFC3339))
	}
}

func (r *Reconciler) deleteStepBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	// Limited subquery keeps each delete short and lock-friendly.
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM tenant_provisioning_steps
		WHERE id IN (
			SELECT id FROM tenant_provisioning_steps
			WHERE completed_at IS NOT NULL AND completed_at < ?
			ORDER BY completed_at ASC
			LIMIT ?
		)
	`, cutoff, stepDeleteBatchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

package provision

import (
	"context"
	"errors"

	"github.com/storekit-cloud/storekit/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultQueueCapacity bounds the provisioning queue. The enqueue side fails
// fast with ErrQueueFull instead of growing without bound under a
// provisioning storm.
const defaultQueueCapacity = 1024

// ErrQueueFull indicates the provisioning queue rejected an enqueue.
var ErrQueueFull = errors.New("provision: queue full")

// Worker consumes the provisioning queue with a single consumer, so two
// tenants are never mid-pipeline simultaneously. Producers enqueue without
// coordination and return immediately.
type Worker struct {
	db          *gorm.DB
	provisioner *Provisioner
	queue       chan string
}

// NewWorker constructs a provisioning worker with the default queue capacity.
func NewWorker(db *gorm.DB, provisioner *Provisioner) *Worker {
	if db == nil || provisioner == nil {
		return nil
	}
	return &Worker{
		db:          db,
		provisioner: provisioner,
		queue:       make(chan string, defaultQueueCapacity),
	}
}

// Enqueue submits a tenant id for provisioning. It never blocks; a full queue
// returns ErrQueueFull.
func (w *Worker) Enqueue(tenantID string) error {
	if w == nil {
		return errors.New("provision: worker not initialized")
	}
	select {
	case w.queue <- tenantID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the consumer loop in a background goroutine. The loop exits
// cleanly between queue items when ctx is canceled; an in-flight pipeline is
// allowed to finish so no step record is left stuck at InProgress.
func (w *Worker) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go w.run(ctx)
	log.Infof("provisioning worker started (queue_capacity=%d)", cap(w.queue))
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tenantID := <-w.queue:
			w.process(ctx, tenantID)
		}
	}
}

// process drives one tenant end to end. Any error from the pipeline invocation
// itself (as opposed to a contained step failure) gets a best-effort Failed
// write; the loop continues regardless, because one tenant's catastrophic
// failure must never stop the worker.
func (w *Worker) process(ctx context.Context, tenantID string) {
	// Shutdown must not cancel a pipeline already started.
	pipelineCtx := context.WithoutCancel(ctx)

	if errSeeding := w.markSeeding(pipelineCtx, tenantID); errSeeding != nil {
		log.WithError(errSeeding).Errorf("provisioning worker: mark seeding failed (tenant=%s)", tenantID)
		return
	}

	if errProvision := w.provisioner.Provision(pipelineCtx, tenantID); errProvision != nil {
		log.WithError(errProvision).Errorf("provisioning worker: pipeline error (tenant=%s)", tenantID)
		if errFail := w.markFailed(pipelineCtx, tenantID, errProvision); errFail != nil {
			log.WithError(errFail).Errorf("provisioning worker: mark failed write failed (tenant=%s)", tenantID)
		}
	}
}

// markSeeding persists the Seeding transition before the pipeline starts so a
// concurrent status read reflects in-progress rather than stale Pending.
func (w *Worker) markSeeding(ctx context.Context, tenantID string) error {
	return w.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"status":     models.TenantStatusSeeding,
			"last_error": "",
		}).Error
}

func (w *Worker) markFailed(ctx context.Context, tenantID string, cause error) error {
	return w.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"status":     models.TenantStatusFailed,
			"last_error": cause.Error(),
		}).Error
}

// Package worker runs the periodic daemon loop that drives the Send
// Executor and Status Reconciler across every registered organization,
// following the teacher's WebhookDeliveryWorker ticker-and-fan-out
// pattern (internal/service/webhook_delivery_worker.go): a ticker wakes
// the loop, which lists organizations and processes each in turn.
package worker

import (
	"context"
	"time"

	"github.com/sunridge-benefits/enroll-scheduler/internal/reconcile"
	"github.com/sunridge-benefits/enroll-scheduler/internal/send"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

// DefaultPollInterval is how often the daemon wakes to sweep every
// organization for pending and stale work.
const DefaultPollInterval = 30 * time.Second

// DefaultChunkSize is the chunk size passed to the executor and
// reconciler on each sweep.
const DefaultChunkSize = 50

// OrgLister enumerates known organization ids, backed by
// pkg/registry.Registry.
type OrgLister interface {
	ListOrgIDs(ctx context.Context) ([]string, error)
}

// OrgBinding is everything the daemon needs to run one sweep over one
// organization's store: its batch ids with outstanding work, and the
// Executor/Reconciler already bound to that organization's database.
type OrgBinding struct {
	OrgID      string
	BatchIDs   []string
	Executor   *send.Executor
	Reconciler *reconcile.Reconciler
}

// Binder resolves the full OrgBinding for one organization, opening (or
// reusing) its connection pool and constructing its Executor/Reconciler.
// Implemented in cmd/scheduler, where the concrete contact lookup,
// templater, and provider adapters are wired.
type Binder func(ctx context.Context, orgID string) (OrgBinding, error)

// Daemon periodically sweeps every registered organization, processing
// pending sends, retrying failures, and reconciling delivery status.
type Daemon struct {
	orgs         OrgLister
	bind         Binder
	log          logger.Logger
	pollInterval time.Duration
	chunkSize    int
}

// New constructs a Daemon. pollInterval and chunkSize fall back to
// DefaultPollInterval/DefaultChunkSize when zero.
func New(orgs OrgLister, bind Binder, log logger.Logger, pollInterval time.Duration, chunkSize int) *Daemon {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Daemon{orgs: orgs, bind: bind, log: log, pollInterval: pollInterval, chunkSize: chunkSize}
}

// Run blocks, sweeping every organization on each tick until ctx is
// cancelled.
func (d *Daemon) Run(ctx context.Context) {
	d.log.Info("scheduler daemon started")

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("scheduler daemon stopping")
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep processes every known organization once, logging and continuing
// past per-organization failures so that one org's outage never stalls
// the rest, mirroring the teacher's per-workspace isolation.
func (d *Daemon) sweep(ctx context.Context) {
	orgIDs, err := d.orgs.ListOrgIDs(ctx)
	if err != nil {
		d.log.WithField("error", err.Error()).Error("failed to list organizations")
		return
	}

	for _, orgID := range orgIDs {
		if err := d.sweepOrg(ctx, orgID); err != nil {
			d.log.WithFields(map[string]interface{}{
				"org_id": orgID,
				"error":  err.Error(),
			}).Error("failed to sweep organization")
		}
	}
}

func (d *Daemon) sweepOrg(ctx context.Context, orgID string) error {
	binding, err := d.bind(ctx, orgID)
	if err != nil {
		return err
	}

	for _, batchID := range binding.BatchIDs {
		if _, err := binding.Executor.ProcessChunk(ctx, batchID, d.chunkSize); err != nil {
			d.log.WithFields(map[string]interface{}{
				"org_id": orgID, "batch_id": batchID, "error": err.Error(),
			}).Error("process chunk failed")
			continue
		}
		if _, err := binding.Executor.RetryFailed(ctx, batchID, d.chunkSize); err != nil {
			d.log.WithFields(map[string]interface{}{
				"org_id": orgID, "batch_id": batchID, "error": err.Error(),
			}).Error("retry failed batch failed")
			continue
		}
		if _, err := binding.Reconciler.Pull(ctx, batchID, d.chunkSize); err != nil {
			d.log.WithFields(map[string]interface{}{
				"org_id": orgID, "batch_id": batchID, "error": err.Error(),
			}).Error("pull reconciliation failed")
		}
	}

	return nil
}

package linking

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"leaddesk-api/domain"
	"leaddesk-api/watch"
)

// Source supplies queued reconcile records.
type Source interface {
	DequeueReconcile(ctx context.Context) (*domain.ReconcileRecord, func(context.Context) error, error)
}

// Reconciler drains the reconcile queue and re-applies the account-side write
// of a linkage transition whose link-row side already landed. Repairs are
// idempotent; records superseded by a later transition are dropped.
type Reconciler struct {
	source Source
	store  Store
	evict  Evictor
	pub    Publisher
	logger *log.Logger
	idle   time.Duration
}

// NewReconciler creates a Reconciler. evict and pub may be nil.
func NewReconciler(source Source, store Store, evict Evictor, pub Publisher, logger *log.Logger) *Reconciler {
	if source == nil {
		panic("linking.NewReconciler: source is nil")
	}
	if store == nil {
		panic("linking.NewReconciler: store is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Reconciler{source: source, store: store, evict: evict, pub: pub, logger: logger, idle: time.Second}
}

// Run consumes reconcile records until the context is canceled. Failed
// repairs are left unacked so the queue redelivers them.
func (r *Reconciler) Run(ctx context.Context) {
	for ctx.Err() == nil {
		rec, ack, err := r.source.DequeueReconcile(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.WithError(err).Error("reconcile dequeue failed")
			r.sleep(ctx)
			continue
		}
		if rec == nil {
			r.sleep(ctx)
			continue
		}
		if err := r.apply(ctx, *rec); err != nil {
			r.logger.WithError(err).WithFields(log.Fields{
				"op":      rec.Op,
				"manager": rec.ManagerID,
				"client":  rec.ClientID,
			}).Error("reconcile repair failed")
			continue
		}
		if err := ack(ctx); err != nil {
			r.logger.WithError(err).Error("reconcile ack failed")
		}
	}
}

func (r *Reconciler) sleep(ctx context.Context) {
	timer := time.NewTimer(r.idle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (r *Reconciler) apply(ctx context.Context, rec domain.ReconcileRecord) error {
	client, err := r.store.GetAccount(ctx, rec.ClientID)
	if err != nil {
		return err
	}
	if client == nil || client.Role != domain.RoleClient {
		// Account deleted or converted since the failure; nothing to repair.
		return nil
	}

	status, managerID := repairTarget(rec.Op, rec.ManagerID)
	if client.Status == status && client.LinkedManagerID == managerID {
		return nil
	}
	if client.LinkedManagerID != "" && client.LinkedManagerID != rec.ManagerID {
		// A later transition bound the client to another manager.
		r.dropSuperseded(rec)
		return nil
	}

	// The link row is written before the account, so it records what the
	// failed transition intended. A row that no longer matches the recorded
	// op means a later transition settled the pair and the record is stale:
	// repairing it would resurrect state the manager has since revoked.
	matches, err := r.rowMatchesOp(ctx, rec, status)
	if err != nil {
		return err
	}
	if !matches {
		r.dropSuperseded(rec)
		return nil
	}

	if err := r.store.UpdateAccountLink(ctx, rec.ClientID, status, managerID); err != nil {
		return err
	}

	if r.evict != nil {
		r.evict.EvictAccount(ctx, rec.ClientID)
		r.evict.EvictLinks(ctx, rec.ManagerID)
	}
	if r.pub != nil {
		for _, key := range []string{watch.AccountKey(rec.ClientID), watch.LinksKey(rec.ManagerID)} {
			if err := r.pub.Publish(ctx, key); err != nil {
				r.logger.WithError(err).WithField("key", key).Error("publish update failed")
			}
		}
	}
	r.logger.WithFields(log.Fields{
		"op":      rec.Op,
		"manager": rec.ManagerID,
		"client":  rec.ClientID,
		"status":  status,
	}).Info("linkage repaired")
	return nil
}

// rowMatchesOp reports whether the manager's link row for the client is
// still the one the recorded op left behind: request and approve keep a row
// carrying the target status, reject and remove delete it.
func (r *Reconciler) rowMatchesOp(ctx context.Context, rec domain.ReconcileRecord, status domain.LinkStatus) (bool, error) {
	summaries, err := r.store.LinkedClients(ctx, rec.ManagerID)
	if err != nil {
		return false, err
	}
	var row *domain.ClientSummary
	for i := range summaries {
		if summaries[i].ID == rec.ClientID {
			row = &summaries[i]
			break
		}
	}
	switch rec.Op {
	case "request", "approve":
		return row != nil && row.Status == status, nil
	default:
		return row == nil, nil
	}
}

func (r *Reconciler) dropSuperseded(rec domain.ReconcileRecord) {
	r.logger.WithFields(log.Fields{
		"op":      rec.Op,
		"manager": rec.ManagerID,
		"client":  rec.ClientID,
	}).Warn("reconcile record superseded, dropping")
}

// repairTarget is the account state the failed transition was meant to write.
func repairTarget(op, managerID string) (domain.LinkStatus, string) {
	switch op {
	case "request":
		return domain.LinkPending, managerID
	case "approve":
		return domain.LinkApproved, managerID
	case "reject":
		return domain.LinkRejected, ""
	default:
		// remove and convert-to-client both clear the linkage.
		return domain.LinkRemoved, ""
	}
}

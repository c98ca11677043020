package worker

import (
	"context"
	"time"

	"travel-service/internal/models"
	"travel-service/internal/service"
	"travel-service/internal/util"

	"go.uber.org/zap"
)

const reconcileBatchSize = 50

// StalePaymentLister finds payments stuck in Pending. *store.Store satisfies it.
type StalePaymentLister interface {
	ListStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
}

// Verifier settles a payment against the gateway. *service.PaymentOrchestrator satisfies it.
type Verifier interface {
	Verify(ctx context.Context, txRef string) (*service.VerifyResult, error)
}

// ReconcileWorker periodically re-verifies payments whose payer never came
// back through the callback or return URL.
type ReconcileWorker struct {
	payments StalePaymentLister
	verifier Verifier
	interval time.Duration
	minAge   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewReconcileWorker(payments StalePaymentLister, verifier Verifier, interval, minAge time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		payments: payments,
		verifier: verifier,
		interval: interval,
		minAge:   minAge,
		now:      time.Now,
		logger:   util.GetLogger().Named("reconcile"),
	}
}

// Start sweeps every interval until ctx is cancelled. A zero interval disables it.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		w.logger.Info("Payment reconciliation disabled")
		return nil
	}

	w.logger.Info("Starting payment reconciliation",
		zap.Duration("interval", w.interval),
		zap.Duration("min_age", w.minAge))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce verifies one batch of stale payments and reports how many settled
// as verified.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (checked, verified int) {
	ctx, span := util.StartSpan(ctx, "ReconcileWorker.RunOnce")
	defer span.End()

	payments, err := w.payments.ListStalePendingPayments(ctx, w.now().Add(-w.minAge), reconcileBatchSize)
	if err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		util.SpanError(span, err)
		w.logger.Error("Failed to list stale payments", zap.Error(err))
		return 0, 0
	}

	stillOpen := 0
	for _, p := range payments {
		if ctx.Err() != nil {
			break
		}
		txRef := p.TxRef()
		if txRef == "" {
			continue
		}

		checked++
		res, err := w.verifier.Verify(ctx, txRef)
		if err != nil {
			w.logger.Warn("Reconciliation verify failed",
				zap.Int64("payment_id", p.ID),
				zap.String("tx_ref", txRef),
				zap.Error(err))
			continue
		}
		switch {
		case res.Verified:
			verified++
		case res.Pending:
			stillOpen++
		}
	}

	util.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	if checked > 0 {
		w.logger.Info("Reconciliation sweep finished",
			zap.Int("checked", checked),
			zap.Int("verified", verified),
			zap.Int("still_open", stillOpen))
	}
	return checked, verified
}

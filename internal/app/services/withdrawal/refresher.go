package withdrawal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/pkg/logger"
)

// DefaultRefreshInterval is how often open requests are reconciled with the
// authority when no interval is configured.
const DefaultRefreshInterval = 30 * time.Second

// Refresher periodically re-queries the authority for every request that is
// still open locally (pending or approved) and mirrors the reported status.
// It exists so a request whose status the user never polls still converges.
type Refresher struct {
	svc      *Service
	store    storage.WithdrawalStore
	interval time.Duration
	log      *logger.Logger

	cron *cron.Cron
}

// NewRefresher builds a refresher over the given service. A non-positive
// interval falls back to DefaultRefreshInterval.
func NewRefresher(svc *Service, store storage.WithdrawalStore, interval time.Duration, log *logger.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if log == nil {
		log = logger.NewDefault("withdrawal-refresher")
	}
	return &Refresher{svc: svc, store: store, interval: interval, log: log}
}

// Start schedules the reconciliation job. It returns once the scheduler is
// running; Stop tears it down.
func (r *Refresher) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc("@every "+r.interval.String(), func() {
		r.refreshOnce(ctx)
	})
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.log.WithField("interval", r.interval.String()).Info("withdrawal status refresher started")
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.log.Info("withdrawal status refresher stopped")
}

// refreshOnce reconciles every open request. Individual failures are logged
// and skipped so one unreachable query does not starve the rest of the batch.
func (r *Refresher) refreshOnce(ctx context.Context) {
	open, err := r.store.ListWithdrawalsByStatus(ctx, wallet.WithdrawalPending, wallet.WithdrawalApproved)
	if err != nil {
		r.log.WithError(err).Warn("withdrawal refresh skipped, open request scan failed")
		return
	}

	refreshed := 0
	for _, req := range open {
		resp, err := r.svc.authority.QueryStatus(ctx, req.RequestID)
		if err != nil {
			r.log.WithError(err).WithField("request_id", req.RequestID).
				Debug("authority status query failed")
			continue
		}
		reported := wallet.WithdrawalStatus(resp.Status)
		if !wallet.ValidWithdrawalStatus(reported) || reported == req.Status {
			continue
		}
		if _, err := r.svc.UpdateStatus(ctx, req.RequestID, reported); err != nil {
			r.log.WithError(err).WithField("request_id", req.RequestID).
				Debug("authority status not mirrored")
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		r.log.WithField("refreshed", refreshed).WithField("open", len(open)).
			Info("withdrawal statuses reconciled")
	}
}

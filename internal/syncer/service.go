// Package syncer drains the offline sale queue and refreshes the local
// catalog whenever the server is reachable. Passes are single-flight:
// a pass requested while one runs is dropped, the running pass already
// covers its work.
package syncer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/Sirveme/quevendi-pos/internal/catalog"
	"github.com/Sirveme/quevendi-pos/internal/sales"
	"github.com/Sirveme/quevendi-pos/pkg/config"
	"github.com/Sirveme/quevendi-pos/pkg/enums"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/metrics"
)

// Connectivity is the slice of the monitor the syncer needs.
type Connectivity interface {
	Online() bool
	Check(ctx context.Context) bool
	LinkDown(ctx context.Context)
}

// PassReport summarizes one sync pass.
type PassReport struct {
	Trigger  string
	Synced   int
	Failed   int
	Skipped  int
	Aborted  bool
	Duration time.Duration
	Err      error
}

// ServiceParams bundles the synchronizer dependencies.
type ServiceParams struct {
	Sales        *sales.Service
	Catalog      *catalog.Service
	Submitter    Submitter
	Connectivity Connectivity
	Tokens       TokenSource
	Config       config.SyncConfig
	Metrics      *metrics.SyncMetrics
	Notifier     Notifier
	Wake         WakeRegistrar
	Logger       *logger.Logger
}

// Service coordinates queue draining and catalog refresh.
type Service struct {
	sales    *sales.Service
	catalog  *catalog.Service
	submit   Submitter
	conn     Connectivity
	tokens   TokenSource
	cfg      config.SyncConfig
	met      *metrics.SyncMetrics
	notifier Notifier
	wake     WakeRegistrar
	logg     *logger.Logger

	syncing atomic.Bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewService builds the synchronizer.
func NewService(params ServiceParams) (*Service, error) {
	if params.Sales == nil {
		return nil, fmt.Errorf("sales service required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("submitter required")
	}
	if params.Connectivity == nil {
		return nil, fmt.Errorf("connectivity monitor required")
	}
	if params.Tokens == nil {
		params.Tokens = StaticTokenSource("")
	}
	if params.Notifier == nil {
		params.Notifier = NopNotifier{}
	}
	if params.Wake == nil {
		params.Wake = NopWakeRegistrar{}
	}
	cfg := params.Config
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 5
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 3 * time.Second
	}
	if cfg.CatalogInterval <= 0 {
		cfg.CatalogInterval = 15 * time.Minute
	}
	if cfg.RetrySweepInterval <= 0 {
		cfg.RetrySweepInterval = time.Minute
	}
	return &Service{
		sales:    params.Sales,
		catalog:  params.Catalog,
		submit:   params.Submitter,
		conn:     params.Connectivity,
		tokens:   params.Tokens,
		cfg:      cfg,
		met:      params.Metrics,
		notifier: params.Notifier,
		wake:     params.Wake,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OnConnectivityChange is the monitor listener. A transition to online
// schedules a pass after a short settle delay and a fresh probe, so a
// flapping connection does not start a drain it cannot finish.
// Transitions to offline need no action: the in-progress pass aborts on
// its own transport error.
func (s *Service) OnConnectivityChange(ctx context.Context, online bool) {
	if !online {
		return
	}
	go func() {
		if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
			return
		}
		if !s.conn.Check(ctx) {
			return
		}
		s.SyncNow(ctx, "reconnect")
	}()
}

// SyncNow runs one full pass: drain the queue, refresh the catalog,
// arm the background wake for the next offline period. A pass already
// in flight makes this a no-op.
func (s *Service) SyncNow(ctx context.Context, trigger string) PassReport {
	if !s.syncing.CompareAndSwap(false, true) {
		return PassReport{Trigger: trigger, Skipped: 1}
	}
	defer s.syncing.Store(false)

	started := s.now()
	s.notifier.SyncStarted(trigger)

	report := s.drain(ctx, trigger)

	if !report.Aborted {
		if err := s.refreshCatalog(ctx); err != nil {
			report.Err = multierr.Append(report.Err, err)
		}
	}

	pending, err := s.sales.PendingCount(ctx)
	if err != nil {
		report.Err = multierr.Append(report.Err, err)
		pending = 0
	}
	if err := s.wake.Register(ctx, pending); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "wake registration failed")
	}

	report.Trigger = trigger
	report.Duration = s.now().Sub(started)
	s.met.ObservePass(trigger, report.Duration)
	s.notifier.SyncFinished(report)

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"trigger": trigger,
			"synced":  report.Synced,
			"failed":  report.Failed,
			"aborted": report.Aborted,
		})
		if report.Err != nil {
			s.logg.Error(logCtx, "sync pass finished with errors", report.Err)
		} else {
			s.logg.Info(logCtx, "sync pass finished")
		}
	}
	return report
}

// drain walks the pending queue oldest first and delivers each sale.
// Sales a dead process left flagged as in-flight are re-queued first.
// A transport error aborts the whole pass and flips the monitor
// offline: the remaining sales would only burn retries against a dead
// link.
func (s *Service) drain(ctx context.Context, trigger string) PassReport {
	var report PassReport

	if _, err := s.sales.RecoverStranded(ctx); err != nil {
		report.Err = err
		return report
	}

	pending, err := s.sales.Pending(ctx)
	if err != nil {
		report.Err = err
		return report
	}

	for i, sale := range pending {
		if ctx.Err() != nil {
			report.Aborted = true
			return report
		}
		if sale.Status == enums.SaleStatusSyncing {
			report.Skipped++
			continue
		}
		if sale.RetryCount >= s.cfg.RetryCeiling {
			report.Skipped++
			continue
		}
		if sale.Token == "" || tokenExpired(sale.Token, s.now()) {
			if err := s.sales.MarkError(ctx, sale.LocalID, "missing or expired credential"); err != nil {
				report.Err = multierr.Append(report.Err, err)
			}
			report.Failed++
			s.met.AddFailed(1)
			continue
		}

		if err := s.sales.MarkSyncing(ctx, sale.LocalID); err != nil {
			report.Err = multierr.Append(report.Err, err)
			continue
		}

		result, err := s.submit.Submit(ctx, sale)
		switch {
		case err == nil:
			if markErr := s.sales.MarkSynced(ctx, sale.LocalID, result.ServerSaleID); markErr != nil {
				report.Err = multierr.Append(report.Err, markErr)
				continue
			}
			report.Synced++
			s.met.AddSynced(1)
			s.notifier.SaleSynced(sale.LocalID, result.ServerSaleID)

		case pkgerrors.HasCode(err, pkgerrors.CodeNetwork):
			// Dead link, not the sale's fault. Put it back without
			// burning a retry and stop the pass.
			if markErr := s.sales.MarkPending(ctx, sale.LocalID); markErr != nil {
				report.Err = multierr.Append(report.Err, markErr)
			}
			report.Aborted = true
			report.Err = multierr.Append(report.Err, err)
			s.conn.LinkDown(ctx)
			return report

		default:
			if markErr := s.sales.MarkError(ctx, sale.LocalID, err.Error()); markErr != nil {
				report.Err = multierr.Append(report.Err, markErr)
			}
			report.Failed++
			report.Err = multierr.Append(report.Err, err)
			s.met.AddFailed(1)
		}

		if i < len(pending)-1 {
			if err := s.sleep(ctx, s.cfg.SubmitPause); err != nil {
				report.Aborted = true
				return report
			}
		}
	}
	return report
}

func (s *Service) refreshCatalog(ctx context.Context) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}
	_, err = s.catalog.SyncFromServer(ctx, token)
	return err
}

// Run drives the periodic work until ctx is done: catalog refreshes
// every CatalogInterval and retry sweeps every RetrySweepInterval, both
// only while online.
func (s *Service) Run(ctx context.Context) {
	catalogTicker := time.NewTicker(s.cfg.CatalogInterval)
	defer catalogTicker.Stop()
	sweepTicker := time.NewTicker(s.cfg.RetrySweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-catalogTicker.C:
			if !s.conn.Online() {
				continue
			}
			if err := s.refreshCatalog(ctx); err != nil && s.logg != nil {
				s.logg.Error(ctx, "periodic catalog refresh failed", err)
			}

		case <-sweepTicker.C:
			if !s.conn.Online() {
				continue
			}
			reset, err := s.sales.ResetErrors(ctx)
			if err != nil {
				if s.logg != nil {
					s.logg.Error(ctx, "retry sweep failed", err)
				}
				continue
			}
			if reset > 0 {
				s.SyncNow(ctx, "retry")
			}
		}
	}
}

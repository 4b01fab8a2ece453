package app

import (
	"context"
	"fmt"
	"time"

	journalsvc "github.com/novadex/wallet-layer/internal/app/services/journal"
	ledgersvc "github.com/novadex/wallet-layer/internal/app/services/ledger"
	withdrawalsvc "github.com/novadex/wallet-layer/internal/app/services/withdrawal"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/internal/app/storage/memory"
	"github.com/novadex/wallet-layer/internal/app/system"
	"github.com/novadex/wallet-layer/internal/dedup"
	"github.com/novadex/wallet-layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Ledger      storage.LedgerStore
	Journal     storage.JournalStore
	Withdrawals storage.WithdrawalStore
	Users       storage.UserStore
}

// Options tunes the application's background behavior.
type Options struct {
	// DedupWindow is the duplicate suppression window for withdrawal
	// submissions. Zero uses the default.
	DedupWindow time.Duration
	// RefreshInterval drives the withdrawal status reconciler. Zero uses the
	// default, a negative value disables reconciliation.
	RefreshInterval time.Duration
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Ledger      *ledgersvc.Service
	Journal     *journalsvc.Service
	Withdrawals *withdrawalsvc.Service
	Users       storage.UserStore
}

// New builds a fully initialised application with the provided stores and
// approval authority client.
func New(stores Stores, authority withdrawalsvc.Authority, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if authority == nil {
		return nil, fmt.Errorf("approval authority client is required")
	}

	mem := memory.New()
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Journal == nil {
		stores.Journal = mem
	}
	if stores.Withdrawals == nil {
		stores.Withdrawals = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}

	window := opts.DedupWindow
	if window <= 0 {
		window = dedup.DefaultWindow
	}

	ledgerService := ledgersvc.New(stores.Ledger, log)
	journalService := journalsvc.New(stores.Journal, log)
	withdrawalService := withdrawalsvc.New(stores.Withdrawals, authority, dedup.NewCache(window), log)

	manager := system.NewManager()
	if opts.RefreshInterval >= 0 {
		refresher := withdrawalsvc.NewRefresher(withdrawalService, stores.Withdrawals, opts.RefreshInterval, log)
		if err := manager.Register(&refresherService{refresher}); err != nil {
			return nil, fmt.Errorf("register refresher: %w", err)
		}
	} else {
		log.Warn("withdrawal status reconciliation disabled")
	}

	return &Application{
		manager:     manager,
		log:         log,
		Ledger:      ledgerService,
		Journal:     journalService,
		Withdrawals: withdrawalService,
		Users:       stores.Users,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// refresherService adapts the withdrawal refresher to the lifecycle
// interface.
type refresherService struct {
	r *withdrawalsvc.Refresher
}

func (s *refresherService) Name() string { return "withdrawal-refresher" }

func (s *refresherService) Start(ctx context.Context) error { return s.r.Start(ctx) }

func (s *refresherService) Stop(context.Context) error {
	s.r.Stop()
	return nil
}

// Package app wires configuration into a ready to use attempt runner.
package app

import (
	"io"
	"net/mail"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"

	"github.com/rhyrak/go-allocate/internal/attempt"
	"github.com/rhyrak/go-allocate/internal/config"
	"github.com/rhyrak/go-allocate/internal/matching"
	"github.com/rhyrak/go-allocate/internal/notify"
	"github.com/rhyrak/go-allocate/internal/scheduler"
	"github.com/rhyrak/go-allocate/internal/solver"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/internal/storage/memory"
	"github.com/rhyrak/go-allocate/internal/storage/postgres"
)

const metricsFlushInterval = time.Second

// App holds the long lived components of a process.
type App struct {
	Config  *config.Configuration
	Store   storage.Store
	Solvers *solver.Registry
	Runner  *attempt.Runner
	Scope   tally.Scope

	closers []io.Closer
}

// New builds every component cfg describes. Snapshots are read below root.
func New(cfg *config.Configuration, root string) (*App, error) {
	a := &App{Config: cfg}

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   "allocate",
		Reporter: tally.NullStatsReporter,
	}, metricsFlushInterval)
	a.Scope = scope
	a.closers = append(a.closers, closer)

	store, err := newStore(cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.Solvers = solver.NewRegistry(
		solver.NewGophersat(cfg.Solver.ObjectiveScale),
		solver.NewCBC(cfg.Solver.CBCBinary, cfg.Solver.TimeLimit),
		solver.NewSCIP(cfg.Solver.SCIPBinary, cfg.Solver.TimeLimit),
	)

	recipients, err := notify.ParseRecipients(cfg.Notify.Recipients)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "notification recipients")
	}
	notifier, err := newNotifier(cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Runner = attempt.NewRunner(store, attempt.DirSource{Root: root}, a.Solvers, notifier, attempt.Options{
		Scheduling: scheduler.Options{
			DefaultCap:    cfg.Scheduling.DefaultCap,
			Compatibility: scheduler.Compatibility(cfg.Scheduling.Compatibility),
		},
		SchedulingWeights: cfg.Scheduling.Weights,
		Matching:          matching.Options{CATSLimit: cfg.Matching.CATSLimit},
		MatchingWeights:   cfg.Matching.Weights,
		DefaultBackend:    cfg.Solver.Backend,
		ArtifactDir:       cfg.ArtifactDir,
		Recipients:        recipients,
	}, scope)

	log.WithFields(log.Fields{
		"store":    cfg.Store.Kind,
		"backend":  cfg.Solver.Backend,
		"backends": a.Solvers.Names(),
		"notify":   cfg.Notify.Kind,
	}).Info("components initialized")
	return a, nil
}

// RetryPolicy returns the configured retry policy.
func (a *App) RetryPolicy() attempt.RetryPolicy {
	return attempt.RetryPolicy{MaxAttempts: a.Config.Retry.MaxAttempts, Interval: a.Config.Retry.Interval}
}

// Close releases the store and flushes metrics.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}

func newStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Kind {
	case "postgres":
		s, err := postgres.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "memory", "":
		return memory.New(), nil
	}
	return nil, errors.Errorf("unknown store kind %q", cfg.Kind)
}

func newNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	switch cfg.Kind {
	case "sendgrid":
		return notify.NewSendgrid(cfg.SendgridKey, cfg.AppName, cfg.From), nil
	case "console":
		return notify.NewConsole(os.Stdout, mail.Address{Name: cfg.AppName, Address: cfg.From}), nil
	case "none", "":
		return nil, nil
	}
	return nil, errors.Errorf("unknown notifier kind %q", cfg.Kind)
}

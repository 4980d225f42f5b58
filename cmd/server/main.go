package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rhyrak/go-allocate/internal/app"
	"github.com/rhyrak/go-allocate/internal/attempt"
	"github.com/rhyrak/go-allocate/internal/config"
	"github.com/rhyrak/go-allocate/internal/logging"
)

var (
	version string

	cli = kingpin.New("allocate-server", "HTTP service running scheduling and matching attempts")

	configDir = cli.Flag("config-dir", "Directory holding .env.<env> files").
			Default(".").
			String()

	env = cli.Flag("env", "Environment name (set $ALLOCATE_ENV to override)").
		Envar("ALLOCATE_ENV").
		String()
)

func main() {
	cli.Version(version)
	cli.HelpFlag.Short('h')
	kingpin.MustParse(cli.Parse(os.Args[1:]))

	cfg, err := config.Load(*configDir, *env)
	if err != nil {
		log.WithError(err).Fatal("Cannot load configuration")
	}
	logging.Configure(cfg.LogLevel, cfg.LogJSON)
	logging.ConfigureRollbar(logging.RollbarConfig{
		Token:       cfg.Rollbar.Token,
		Environment: cfg.Env,
		Host:        cfg.HTTPAddr,
		CodeVersion: version,
	})
	defer logging.Close()

	a, err := app.New(cfg, cfg.DataRoot)
	if err != nil {
		log.WithError(err).Fatal("Cannot initialize components")
	}
	defer a.Close()

	pool := attempt.NewPool(a.Runner, cfg.Workers, a.RetryPolicy())
	defer pool.Stop()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(&handler{runner: a.Runner, store: a.Store, solvers: a.Solvers, pool: pool}),
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP shutdown failed")
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/qabase/qabase/backend/go-services/internal/config"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/internal/database"
	"github.com/qabase/qabase/backend/go-services/internal/importer"
	"github.com/qabase/qabase/backend/go-services/internal/runlock"
	"github.com/qabase/qabase/backend/go-services/internal/storage"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

// env carries what the commands share. Tests preset store and cfg.
type env struct {
	cfg    *config.Config
	store  repository.Store
	locker *runlock.Locker
	sink   importer.ArtifactSink
	in     io.Reader
	out    io.Writer

	closers []func()
}

func newRootCmd(e *env) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "qabase",
		Short:         "Import, reconcile and clean up qabase content",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if logLevel == "" {
				logLevel = os.Getenv("LOG_LEVEL")
			}
			logger.Init(logLevel)
			if e.out == nil {
				e.out = cmd.OutOrStdout()
			}
			if e.in == nil {
				e.in = cmd.InOrStdin()
			}
			return e.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (default LOG_LEVEL or info)")

	root.AddCommand(
		newImportCmd(e),
		newResyncCmd(e),
		newDedupCmd(e),
		newCountsCmd(e),
	)
	return root
}

// open resolves configuration and connects the store, and optionally
// Redis and MinIO. Only the store is required.
func (e *env) open(ctx context.Context) error {
	if e.cfg == nil {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		e.cfg = cfg
	}
	if e.store == nil {
		repo, client, err := database.OpenStore(ctx, e.cfg.MongoDB, 3)
		if err != nil {
			return err
		}
		e.store = repo
		e.closers = append(e.closers, func() { _ = client.Disconnect(context.Background()) })
	}
	if e.locker == nil {
		var rdb *redis.Client
		if addr := e.cfg.Redis.Addr(); addr != "" {
			rdb = redis.NewClient(&redis.Options{Addr: addr, Password: e.cfg.Redis.Password, DB: e.cfg.Redis.DB})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis %s: %w", addr, err)
			}
			e.closers = append(e.closers, func() { _ = rdb.Close() })
		}
		e.locker = runlock.NewLocker(rdb, e.cfg.Redis.LockTTL)
	}
	if e.sink == nil && e.cfg.MinIO.Endpoint != "" {
		s, err := storage.NewMinIOStorage(ctx, e.cfg.MinIO)
		if err != nil {
			logger.Warnf("artifact upload disabled: %v", err)
		} else {
			e.sink = s
		}
	}
	return nil
}

// close releases what open connected. Commands may fail, so main calls it
// after Execute rather than relying on a post-run hook.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// batchLock is shared by every command that writes content, so an import,
// a resync and a dedup never run against the store at the same time.
const batchLock = "batch"

// withLock runs fn while holding the batch lock. The lock is refreshed for
// the whole run; if it is lost anyway, fn's context is cancelled. Run
// metrics are pushed once fn returns.
func (e *env) withLock(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx := cmd.Context()
	lk, err := e.locker.Acquire(ctx, batchLock)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := lk.KeepAlive(ctx, func(err error) {
		logger.Errorf("%v; stopping run", err)
		cancel()
	})
	defer func() {
		stop()
		if err := lk.Release(context.Background()); err != nil {
			logger.Warnf("release %s lock: %v", batchLock, err)
		}
	}()
	defer e.pushMetrics(cmd.Name())
	return fn(ctx)
}

// pushMetrics hands the run's counters to the Pushgateway, if one is
// configured. The process exits right after, so this is their only exit.
func (e *env) pushMetrics(command string) {
	url := e.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, url, e.cfg.Metrics.Job, command); err != nil {
		logger.Warnf("push metrics to %s: %v", url, err)
		return
	}
	logger.Debugf("pushed %s metrics to %s", command, url)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/textpesa/textpesa/internal/asset"
	"github.com/textpesa/textpesa/internal/authz"
	"github.com/textpesa/textpesa/internal/cache"
	"github.com/textpesa/textpesa/internal/chain"
	"github.com/textpesa/textpesa/internal/config"
	"github.com/textpesa/textpesa/internal/contact"
	"github.com/textpesa/textpesa/internal/dispatch"
	"github.com/textpesa/textpesa/internal/infra"
	"github.com/textpesa/textpesa/internal/logging"
	"github.com/textpesa/textpesa/internal/notify"
	"github.com/textpesa/textpesa/internal/routes"
	"github.com/textpesa/textpesa/internal/server"
	"github.com/textpesa/textpesa/internal/settlement"
	"github.com/textpesa/textpesa/internal/sms"
	"github.com/textpesa/textpesa/internal/user"
	"github.com/textpesa/textpesa/internal/vault"
	"github.com/textpesa/textpesa/internal/wallet"
	"github.com/textpesa/textpesa/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	eth, err := infra.NewEthereumClient(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("connect chain rpc", "error", err)
		os.Exit(1)
	}
	defer eth.Close()

	chainClient, err := chain.NewEthereumClient(ctx, eth, cfg.Chain.CallTimeout, cfg.Chain.ConfirmWait)
	if err != nil {
		logger.Error("init chain client", "error", err)
		os.Exit(1)
	}

	vaultKey, err := cfg.VaultKey()
	if err != nil {
		logger.Error("load vault key", "error", err)
		os.Exit(1)
	}
	keyVault, err := vault.New(vaultKey)
	if err != nil {
		logger.Error("init vault", "error", err)
		os.Exit(1)
	}

	users := user.NewPostgresRepository(db)
	wallets := wallet.NewService(wallet.NewPostgresRepository(db), keyVault)
	contacts := contact.NewService(contact.NewPostgresRepository(db))

	var priceSource asset.PriceSource
	if cfg.Registry.PriceSourceURL != "" {
		priceSource = asset.NewHTTPPriceSource(cfg.Registry.PriceSourceURL, 10*time.Second)
	}
	registry := asset.NewRegistry(asset.NewPostgresRepository(db), cache.NewRedis(redisClient),
		chainClient, priceSource, asset.Options{
			NativeSymbol:   cfg.Chain.NativeSymbol,
			CacheTTL:       cfg.Registry.CacheTTL,
			PriceFreshness: cfg.Registry.PriceFreshness,
		})

	authzSvc := authz.NewService(users, authz.NewPostgresCodeStore(db))

	var sender sms.Sender
	if cfg.Gateway.URL != "" {
		sender = sms.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.SenderID, cfg.Gateway.SendTimeout)
	} else {
		logger.Warn("no sms gateway configured, logging outbound messages")
		sender = sms.NewLoggerSender(logger)
	}

	queue := notify.NewQueue(notify.NewPostgresRepository(db), users, sender,
		logging.Component(logger, "notify"), notify.QueueOptions{
			MaxAttempts: cfg.Notify.MaxAttempts,
			Retention:   cfg.Notify.Retention,
		})

	settle := settlement.NewService(settlement.NewPostgresRepository(db), users, wallets,
		contacts, registry, chainClient, logging.Component(logger, "settlement"),
		settlement.Options{NotifyMaxAttempts: cfg.Notify.MaxAttempts})

	dispatcher := dispatch.New(users, wallets, contacts, registry, authzSvc, settle, queue,
		logging.Component(logger, "dispatch"))

	srv, err := server.New(routes.Deps{
		Cfg:        cfg,
		DB:         db,
		Cache:      redisClient,
		Chain:      chainClient,
		Logger:     logger,
		Dispatcher: dispatcher,
		Settle:     settle,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		notify.NewWorker(queue, logging.Component(logger, "notify"),
			cfg.Notify.DrainInterval, cfg.Notify.SweepInterval, cfg.Notify.DrainBatch).Run(workerCtx)
	}()

	workers.Add(1)
	go func() {
		defer workers.Done()
		watcher.New(chainClient, settle, logging.Component(logger, "watcher"),
			cfg.Watcher.PollInterval, cfg.Watcher.RescanBlocks).Run(workerCtx)
	}()

	if priceSource != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			refreshPrices(workerCtx, registry, cfg.Registry.PriceRefresh, logger)
		}()
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		stopWorkers()
		workers.Wait()
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	stopWorkers()
	workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

func refreshPrices(ctx context.Context, registry *asset.Registry, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := registry.RefreshPrices(ctx); err != nil {
				logger.Error("refresh prices failed", "error", err)
			}
		}
	}
}

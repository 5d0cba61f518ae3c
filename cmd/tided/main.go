package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tide-network/tide-daemon/internal/config"
	"github.com/tide-network/tide-daemon/internal/core/application"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/internal/infrastructure/chain/electrum"
	"github.com/tide-network/tide-daemon/internal/infrastructure/pubsub"
	"github.com/tide-network/tide-daemon/internal/infrastructure/registry"
	"github.com/tide-network/tide-daemon/internal/infrastructure/signer"
	dbbadger "github.com/tide-network/tide-daemon/internal/infrastructure/storage/db/badger"
	"github.com/tide-network/tide-daemon/internal/infrastructure/storage/db/inmemory"
	"github.com/tide-network/tide-daemon/internal/interfaces/ws"
	"github.com/tide-network/tide-daemon/pkg/stats"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	net := config.GetNetwork()
	dbType := config.GetString(config.DBTypeKey)
	log.Infof("starting tided on %s with %s storage", net.Name, dbType)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repoManager, err := newRepoManager(dbType)
	if err != nil {
		log.WithError(err).Fatal("error while opening database")
	}
	defer repoManager.Close()

	mnemonic, err := config.GetMnemonic()
	if err != nil {
		log.WithError(err).Fatal("error while loading mnemonic")
	}
	signerSvc, err := signer.NewService(mnemonic, net)
	if err != nil {
		log.WithError(err).Fatal("error while setting up the signer")
	}

	pool, err := electrum.NewPool(electrum.PoolOpts{
		Endpoints:         config.GetStringSlice(config.ElectrumEndpointsKey),
		ProxyAddr:         config.GetString(config.ProxyKey),
		AllowInsecureTLS:  config.GetBool(config.AllowInsecureTLSKey),
		RequestsPerSecond: config.GetInt(config.ElectrumRequestRateKey),
	})
	if err != nil {
		log.WithError(err).Fatal("error while setting up the chain source")
	}
	if err := pool.Connect(ctx); err != nil {
		log.WithError(err).Fatal(
			"error while connecting to the electrum servers",
		)
	}
	defer pool.Close()

	notifier := pubsub.NewService()
	defer notifier.Close()

	confThreshold := int64(config.GetInt(config.ConfirmationThresholdKey))
	reconciler := application.NewReconciler(
		repoManager, pool, notifier, confThreshold,
	)
	defer reconciler.Stop()

	syncerSvc := application.NewSyncer(
		repoManager, pool, signerSvc, reconciler,
		config.GetInt(config.GapLimitKey),
	)
	defer syncerSvc.Stop()

	builderSvc := application.NewBuilder(
		repoManager, pool, signerSvc, syncerSvc, net,
	)
	defer builderSvc.Stop()

	var assetRegistry ports.AssetRegistry
	if url := config.GetString(config.RegistryURLKey); url != "" {
		assetRegistry, err = registry.NewService(
			url, repoManager.AssetRepository(), net,
		)
		if err != nil {
			log.WithError(err).Fatal(
				"error while setting up the asset registry",
			)
		}
	}

	walletSvc := application.NewWalletService(
		repoManager, syncerSvc, builderSvc, assetRegistry, net, confThreshold,
	)

	wsServer := ws.NewServer(
		config.GetString(config.WSListenAddrKey), walletSvc, notifier,
	)
	if err := wsServer.Start(); err != nil {
		log.WithError(err).Fatal(
			"error while starting the WebSocket interface",
		)
	}
	defer wsServer.Stop()

	if interval := config.GetInt(config.StatsIntervalKey); interval > 0 {
		stats.EnableMemoryStatistics(
			ctx, time.Duration(interval)*time.Second,
			filepath.Join(config.GetDatadir(), "stats"),
		)
	}

	go func() {
		if err := syncerSvc.Start(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.WithError(err).Error(
					"initial sync failed, request a resync to retry",
				)
			}
			return
		}
		log.Info("wallet synced with the chain")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
	cancel()
}

func newRepoManager(dbType string) (ports.RepoManager, error) {
	if dbType == config.DBInMemory {
		return inmemory.NewRepoManager(), nil
	}
	dbDir := filepath.Join(config.GetDatadir(), config.DbLocation)
	return dbbadger.NewRepoManager(dbDir, log.New())
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/config"
	"github.com/unite-defi/swapd/internal/core/application"
	"github.com/unite-defi/swapd/internal/infrastructure/bitcoin"
	"github.com/unite-defi/swapd/internal/infrastructure/db"
	"github.com/unite-defi/swapd/internal/infrastructure/esplora"
	"github.com/unite-defi/swapd/internal/infrastructure/evm"
	"github.com/unite-defi/swapd/internal/infrastructure/oneinch"
	scheduler "github.com/unite-defi/swapd/internal/infrastructure/scheduler/gocron"
	"github.com/unite-defi/swapd/internal/infrastructure/signer"
	"github.com/unite-defi/swapd/internal/interface/web"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	log.WithFields(log.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("starting swapd...")

	networkParams, err := cfg.NetworkParams()
	if err != nil {
		log.WithError(err).Fatal("invalid network")
	}

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: []any{cfg.Datadir, nil},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	ctx := context.Background()

	evmBackend, err := evm.NewRpcBackend(ctx, cfg.EvmRpcURL, cfg.EvmPrivateKey)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to evm node")
	}

	evmSvc, err := evm.NewService(evmBackend, cfg.EvmHtlcContract)
	if err != nil {
		log.WithError(err).Fatal("failed to init evm htlc service")
	}

	btcSigner, err := signer.NewFromMnemonic(cfg.Mnemonic)
	if err != nil {
		log.WithError(err).Fatal("failed to derive bitcoin signing key")
	}

	explorerSvc := esplora.NewService(cfg.EsploraURL)
	btcSvc, err := bitcoin.NewService(
		explorerSvc, btcSigner, networkParams, int64(cfg.MinConfirmations),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init bitcoin htlc service")
	}

	quoteSvc := oneinch.NewApi(cfg.QuoteURL, cfg.QuoteApiKey, cfg.QuoteTTLDuration())
	schedulerSvc := scheduler.NewScheduler()

	appSvc, err := application.NewService(
		application.Config{
			EvmAddress:      evmBackend.Sender(),
			ResponderWindow: cfg.ResponderWindowDuration(),
			SafetyMargin:    cfg.SafetyMarginDuration(),
			PollInterval:    cfg.PollIntervalDuration(),
		},
		dbSvc, evmSvc, btcSvc, quoteSvc, schedulerSvc,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init application service")
	}

	if err := appSvc.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start application service")
	}

	webSvc := web.NewService(cfg.HTTPPort, appSvc)
	webSvc.Start()

	log.RegisterExitHandler(func() {
		webSvc.Stop()
		appSvc.Stop()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}

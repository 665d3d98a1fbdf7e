package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/audit"
	"github.com/raakeshmj/keymanager/internal/config"
	"github.com/raakeshmj/keymanager/internal/limiter"
	"github.com/raakeshmj/keymanager/internal/logging"
	"github.com/raakeshmj/keymanager/internal/server"
	"github.com/raakeshmj/keymanager/internal/service"
	"github.com/raakeshmj/keymanager/internal/store"
	"github.com/raakeshmj/keymanager/internal/verifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Admin.SharedSecret == "" {
		logger.Warn("admin.shared_secret not set, admin endpoints disabled")
	}

	validatorGW := store.NewValidator(cfg.Store, logger.Named("store.validator"))
	managerGW := store.NewManager(cfg.Store, logger.Named("store.manager"))
	defer validatorGW.Close()
	defer managerGW.Close()

	hasher := verifier.New(verifier.Params{
		TimeCost:    cfg.Verifier.TimeCost,
		MemoryKiB:   cfg.Verifier.MemoryKiB,
		Parallelism: cfg.Verifier.Parallelism,
	})

	validatorSvc := service.NewValidator(
		validatorGW,
		hasher,
		limiter.New(validatorGW, cfg.Rate.RequestsPerMinute, cfg.Rate.CounterTTL),
		audit.NewWriter(validatorGW, logger.Named("audit")),
		logger.Named("validator"),
	)
	adminSvc := service.NewAdmin(managerGW, hasher, logger.Named("admin"))

	srv := server.New(cfg, validatorSvc, adminSvc, validatorGW, managerGW, logger.Named("server"))
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/bnplbot/config"
	"github.com/alejandrodnm/bnplbot/internal/adapters/chain"
	"github.com/alejandrodnm/bnplbot/internal/adapters/identity"
	"github.com/alejandrodnm/bnplbot/internal/adapters/merchantapi"
	"github.com/alejandrodnm/bnplbot/internal/adapters/metrics"
	"github.com/alejandrodnm/bnplbot/internal/adapters/notify"
	"github.com/alejandrodnm/bnplbot/internal/adapters/simulated"
	"github.com/alejandrodnm/bnplbot/internal/adapters/storage"
	"github.com/alejandrodnm/bnplbot/internal/adapters/transport"
	"github.com/alejandrodnm/bnplbot/internal/application/accounts"
	"github.com/alejandrodnm/bnplbot/internal/application/engine"
	"github.com/alejandrodnm/bnplbot/internal/application/goals"
	"github.com/alejandrodnm/bnplbot/internal/application/scenario"
	"github.com/alejandrodnm/bnplbot/internal/application/scheduler"
	"github.com/alejandrodnm/bnplbot/internal/application/state"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

// app agrupa lo que los comandos necesitan después del cableado.
type app struct {
	engine   *engine.Engine
	metrics  *metrics.Prometheus
	reporter *notify.Console
}

type collaborators struct {
	chain     ports.ChainClient
	merchants ports.MerchantAPI
	identity  ports.IdentityProvider
}

// buildCollaborators elige el ledger simulado o los adaptadores reales.
func buildCollaborators(cfg *config.Config) collaborators {
	if cfg.Bot.DryRun {
		ledger := simulated.NewLedger()
		return collaborators{chain: ledger, merchants: ledger, identity: ledger}
	}

	gatewayHTTP := transport.New(transport.Options{
		Name:       "chain-gateway",
		BaseURL:    cfg.Chain.GatewayURL,
		RatePerSec: cfg.Chain.RatePerSec,
	})
	merchantHTTP := transport.New(transport.Options{
		Name:    "merchant-api",
		BaseURL: cfg.MerchantAPI.BaseURL,
	})
	return collaborators{
		chain: chain.NewGateway(gatewayHTTP, chain.Contracts{
			USDC: cfg.Chain.USDCContract,
			LP:   cfg.Chain.LPContract,
			BNPL: cfg.Chain.BNPLContract,
		}),
		merchants: merchantapi.NewClient(merchantHTTP),
		identity:  identity.NewStellarCLI(cfg.Identity.Binary, cfg.Identity.Network, nil),
	}
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	dsn := cfg.Storage.DSN
	if cfg.Bot.DryRun {
		// el ledger simulado no sobrevive al proceso; su estado tampoco debe
		dsn = ":memory:"
	}
	store, err := storage.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func buildApp(cfg *config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	c := buildCollaborators(cfg)

	pool := accounts.New(c.identity, accounts.Config{
		AdminName:        cfg.Accounts.AdminName,
		MerchantPrefix:   cfg.Accounts.MerchantPrefix,
		UserPrefix:       cfg.Accounts.UserPrefix,
		LiquidatorPrefix: cfg.Accounts.LiquidatorPrefix,
	})
	sm := state.New(store)
	sched := scheduler.New(schedulerConfig(cfg), sm)
	tracker := goals.New(goalsFrom(cfg), c.chain, pool)
	prom := metrics.New()
	reporter := notify.NewConsole()

	e := engine.New(engine.Config{
		MaxFailures:        cfg.Bot.MaxFailures,
		Cooldown:           cfg.Cooldown(),
		SaveInterval:       cfg.SaveInterval(),
		BootstrapMerchants: cfg.Bootstrap.MerchantCount,
		BootstrapUsers:     cfg.Bootstrap.UserCount,
	}, engine.Deps{
		Pool: pool,
		Scenarios: &scenario.Deps{
			Pool:      pool,
			Chain:     c.chain,
			Merchants: c.merchants,
			Config:    scenarioConfig(cfg),
		},
		Tracker:   tracker,
		Scheduler: sched,
		State:     sm,
		Metrics:   prom,
		Reporter:  reporter,
	})

	slog.Info("bnplbot wired",
		"dry_run", cfg.Bot.DryRun,
		"interval", fmt.Sprintf("%s-%s", cfg.MinInterval(), cfg.MaxInterval()),
		"storage", storageLabel(cfg),
	)
	return &app{engine: e, metrics: prom, reporter: reporter}, nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		MinInterval: cfg.MinInterval(),
		MaxInterval: cfg.MaxInterval(),
		ActiveHours: activeHoursFrom(cfg),
		RemotePoll:  cfg.RemotePollInterval(),
	}
}

func activeHoursFrom(cfg *config.Config) scheduler.ActiveHours {
	return scheduler.ActiveHours{
		Enabled: cfg.Bot.ActiveHours.Enabled,
		Start:   cfg.Bot.ActiveHours.Start,
		End:     cfg.Bot.ActiveHours.End,
	}
}

func goalsFrom(cfg *config.Config) domain.Goals {
	return domain.Goals{
		TVL:       cfg.Goals.TVL,
		Merchants: cfg.Goals.Merchants,
		Users:     cfg.Goals.Users,
		DailyTx:   cfg.Goals.DailyTx,
	}
}

func scenarioConfig(cfg *config.Config) scenario.Config {
	b := cfg.Bootstrap
	s := cfg.Scenarios
	return scenario.Config{
		Bootstrap: scenario.BootstrapConfig{
			MerchantCount:   b.MerchantCount,
			UserCount:       b.UserCount,
			LiquidatorCount: b.LiquidatorCount,
			InitialTVL:      b.InitialTVL,
			USDCPerUser:     b.USDCPerUser,
			BufferUSDC:      b.BufferUSDC,
			DepositFraction: b.DepositFraction,
			TransferDelay:   cfg.TransferDelay(),
		},
		MinDeposit:          s.MinDeposit,
		MaxDeposit:          s.MaxDeposit,
		MinWithdrawFraction: s.MinWithdrawFraction,
		MaxWithdrawFraction: s.MaxWithdrawFraction,
		MinBill:             s.MinBill,
		MaxBill:             s.MaxBill,
		MaxActiveBills:      s.MaxActiveBills,
	}
}

func storageLabel(cfg *config.Config) string {
	if cfg.Bot.DryRun {
		return "memory"
	}
	if strings.HasPrefix(cfg.Storage.DSN, "postgres://") || strings.HasPrefix(cfg.Storage.DSN, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"royalty-exchange/go-backend/internal/adapters/rpc"
	"royalty-exchange/go-backend/internal/config"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger/simnet"
	"royalty-exchange/go-backend/internal/platform/metrics"
	"royalty-exchange/go-backend/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to royalty.yaml (optional)")
	listen := flag.String("listen", "", "JSON-RPC listen address override")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Ledger-RPC-Token, or \"auto\" (optional)")
	logLevel := flag.String("log-level", "info", "debug | info | warn | error")
	flag.Parse()
	if *showVersion {
		fmt.Printf("ledgerd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *rpcToken != "" {
		_ = os.Setenv(config.EnvPrefix+"SERVER_TOKEN", *rpcToken)
	}
	if *listen != "" {
		_ = os.Setenv(config.EnvPrefix+"SERVER_LISTEN", *listen)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ledgerd failed to load config: %v", err)
	}
	logger := privacylog.NewLogger(os.Stdout, privacylog.ParseLevel(*logLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewLedgerd(reg)

	net := simnet.New(simnet.Config{
		Mode:          cfg.SimnetMode(),
		RoundDuration: cfg.Ledger.RoundDuration,
		Logger:        logger,
		OnRound:       func(round uint64) { m.LastRound.Set(float64(round)) },
	})
	if err := fundKeystore(net, cfg.Accounts, logger); err != nil {
		log.Fatalf("ledgerd failed to fund accounts: %v", err)
	}

	srv, err := rpc.NewServer(net, rpc.Config{
		Addr:           cfg.Server.Listen,
		Token:          cfg.Server.Token,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("ledgerd failed to initialize: %v", err)
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Server.Token), rpc.AutoToken) {
		fmt.Fprintf(os.Stderr, "rpc token: %s\n", srv.Token())
	}

	go func() {
		if err := net.Run(ctx); err != nil {
			logger.Error("round ticker stopped", "error", err)
		}
	}()

	logger.Info("ledgerd starting", "mode", cfg.Ledger.Mode, "addr", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("ledgerd failed: %v", err)
	}
	logger.Info("ledgerd stopped")
}

// fundKeystore credits every keystore account at genesis.
func fundKeystore(net *simnet.Ledger, acc config.AccountsConfig, logger *slog.Logger) error {
	if acc.Keystore == "" {
		return nil
	}
	ks, err := identity.LoadKeystore(acc.Keystore, acc.Password)
	if err != nil {
		return err
	}
	for _, name := range ks.Names() {
		id, err := ks.Account(name)
		if err != nil {
			return err
		}
		net.Fund(id.Address(), acc.Funding)
		logger.Info("account funded", "account", name, "address", id.Address().String(), "amount", acc.Funding)
	}
	return nil
}

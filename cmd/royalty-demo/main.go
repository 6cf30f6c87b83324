package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"royalty-exchange/go-backend/internal/config"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/ledger/rpcclient"
	"royalty-exchange/go-backend/internal/ledger/simnet"
	"royalty-exchange/go-backend/internal/orchestrator"
	"royalty-exchange/go-backend/internal/platform/errclass"
	"royalty-exchange/go-backend/internal/platform/metrics"
	"royalty-exchange/go-backend/internal/platform/privacylog"
	"royalty-exchange/go-backend/internal/storage/checkpoint"
)

const exitInvalidInput = 2

type options struct {
	configPath string
	until      string
	payment    uint64
	logLevel   string
}

type reportView struct {
	RunID       string                  `json:"run_id"`
	State       string                  `json:"state"`
	EnforcerApp uint64                  `json:"enforcer_app"`
	MarketApp   uint64                  `json:"market_app"`
	AssetID     uint64                  `json:"asset_id"`
	Balances    map[string]uint64       `json:"balances"`
	Holdings    map[string]uint64       `json:"holdings"`
	History     []checkpoint.Transition `json:"history"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}
	switch os.Args[1] {
	case "run", "abandon", "report":
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to royalty.yaml (optional)")
	fs.StringVar(&opts.until, "until", orchestrator.Sold.String(), "stop once the run reaches this state")
	fs.Uint64Var(&opts.payment, "payment", 0, "amount the buyer pays (0 pays the listed price)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug | info | warn | error")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(exitInvalidInput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1], opts)
	stop()
	if err != nil {
		reportFailure(err)
		os.Exit(errclass.ExitCode(errclass.Category(err)))
	}
}

func run(ctx context.Context, command string, opts options) (retErr error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	until, err := orchestrator.ParseState(opts.until)
	if err != nil {
		return err
	}
	logger := privacylog.NewLogger(os.Stderr, privacylog.ParseLevel(opts.logLevel))
	slog.SetDefault(logger)

	l, accounts, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	journal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil && retErr == nil {
			retErr = errclass.Wrap(errclass.CategoryStorage, closeErr)
		}
	}()

	engine := executor.New(executor.Config{
		Ledger:      l,
		Diagnostics: cfg.Diagnostics(),
		Metrics:     metrics.NewExecutor(nil),
		Logger:      logger,
	})
	o, err := orchestrator.New(orchestrator.Config{
		RunID:    cfg.Run.ID,
		Engine:   engine,
		State:    l,
		Accounts: accounts,
		Terms: orchestrator.Terms{
			Price:              cfg.Run.Price,
			RoyaltyBasisPoints: cfg.Run.RoyaltyBasisPoints,
			Amount:             cfg.Run.Amount,
			Payment:            opts.payment,
		},
		Rounds:  cfg.Run.RoundBudget,
		Until:   until,
		Journal: journal,
		Logger:  logger,
	})
	if err != nil {
		return errclass.Wrap(errclass.CategoryBuild, err)
	}

	var rep *orchestrator.Report
	switch command {
	case "run":
		rep, err = o.Run(ctx)
	case "abandon":
		if err = o.AbandonListing(ctx); err == nil {
			rep, err = readReport(ctx, o)
		}
	case "report":
		if _, err = o.Load(ctx); err == nil {
			rep, err = readReport(ctx, o)
		}
	}
	if err != nil {
		return err
	}
	return printJSON(view(rep))
}

func readReport(ctx context.Context, o *orchestrator.Orchestrator) (*orchestrator.Report, error) {
	rep, err := o.Report(ctx)
	if err != nil {
		return nil, errclass.Wrap(errclass.CategoryLedger, err)
	}
	return rep, nil
}

// connect returns the ledger named by ledger.endpoint and the run's
// accounts. An in-process simnet funds the accounts itself; ledgerd funds
// keystore accounts at genesis.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Ledger, orchestrator.Accounts, error) {
	accounts, generated, err := loadAccounts(cfg.Accounts)
	if err != nil {
		return nil, orchestrator.Accounts{}, err
	}
	if strings.TrimSpace(cfg.Ledger.Endpoint) != config.EndpointSimnet {
		if generated {
			return nil, orchestrator.Accounts{}, errors.New("accounts.keystore is required with a remote ledger")
		}
		c, err := rpcclient.New(rpcclient.Config{
			Endpoint: cfg.Ledger.Endpoint,
			Token:    cfg.Ledger.Token,
			PollRPS:  cfg.Ledger.PollRPS,
			Timeout:  cfg.Ledger.Timeout,
		})
		if err != nil {
			return nil, orchestrator.Accounts{}, err
		}
		if _, err := c.Status(ctx); err != nil {
			return nil, orchestrator.Accounts{}, errclass.Wrap(errclass.CategoryLedger, err)
		}
		return c, accounts, nil
	}

	net := simnet.New(simnet.Config{
		Mode:          cfg.SimnetMode(),
		RoundDuration: cfg.Ledger.RoundDuration,
		Logger:        logger,
	})
	for _, id := range []*identity.Identity{accounts.Seller, accounts.Beneficiary, accounts.Buyer} {
		net.Fund(id.Address(), cfg.Accounts.Funding)
	}
	go func() {
		_ = net.Run(ctx)
	}()
	return net, accounts, nil
}

func loadAccounts(acc config.AccountsConfig) (orchestrator.Accounts, bool, error) {
	if acc.Keystore == "" {
		var ids [3]*identity.Identity
		for i := range ids {
			id, _, err := identity.Generate()
			if err != nil {
				return orchestrator.Accounts{}, false, err
			}
			ids[i] = id
		}
		return orchestrator.Accounts{Seller: ids[0], Beneficiary: ids[1], Buyer: ids[2]}, true, nil
	}
	ks, err := identity.LoadKeystore(acc.Keystore, acc.Password)
	if err != nil {
		return orchestrator.Accounts{}, false, fmt.Errorf("open keystore %s: %w", acc.Keystore, err)
	}
	var out orchestrator.Accounts
	for name, dst := range map[string]**identity.Identity{
		"seller":      &out.Seller,
		"beneficiary": &out.Beneficiary,
		"buyer":       &out.Buyer,
	} {
		if *dst, err = ks.Account(name); err != nil {
			return orchestrator.Accounts{}, false, err
		}
	}
	return out, false, nil
}

func openJournal(ctx context.Context, cfg config.Config, logger *slog.Logger) (checkpoint.Journal, error) {
	path := strings.TrimSpace(cfg.Run.JournalPath)
	if path == "" {
		return checkpoint.NewMemory(), nil
	}
	if strings.TrimSpace(cfg.Ledger.Endpoint) == config.EndpointSimnet {
		logger.Warn("journal kept across runs against an in-process ledger; resumed runs will not find their applications", "journal", path)
	}
	store, err := checkpoint.Open(ctx, path)
	if err != nil {
		return nil, errclass.Wrap(errclass.CategoryStorage, err)
	}
	return store, nil
}

func view(rep *orchestrator.Report) reportView {
	return reportView{
		RunID:       rep.RunID,
		State:       rep.State.String(),
		EnforcerApp: uint64(rep.EnforcerApp),
		MarketApp:   uint64(rep.MarketApp),
		AssetID:     uint64(rep.AssetID),
		Balances:    rep.Balances,
		Holdings:    rep.Holdings,
		History:     rep.History,
	}
}

// reportFailure prints the error and, for a rejected group, the simulated
// trace of the failing operation.
func reportFailure(err error) {
	writeStderrln(fmt.Sprintf("royalty-demo: %s: %v", errclass.Category(err), err))
	var rejected *executor.RejectedError
	if !errors.As(err, &rejected) || rejected.Trace == nil {
		return
	}
	op, ok := rejected.Trace.Failed()
	if !ok {
		return
	}
	writeStderrln(fmt.Sprintf("  operation %d (%s) rejected: %s", op.Index, op.Type, op.Reason))
	for _, step := range op.Steps {
		writeStderrln("    " + step)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStderrln("royalty-demo <command> [flags]")
	writeStderrln("commands:")
	writeStderrln("  run      [--config path] [--until state] [--payment n] [--log-level level]")
	writeStderrln("  abandon  [--config path] [--log-level level]")
	writeStderrln("  report   [--config path]")
}

func writeStderrln(line string) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(1)
	}
}

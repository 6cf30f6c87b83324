// Package config loads the YAML configuration shared by the binaries and
// applies ROYALTY_* environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"royalty-exchange/go-backend/internal/contracts"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/ledger/simnet"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROYALTY_"

// EndpointSimnet runs the ledger in process instead of dialing ledgerd.
const EndpointSimnet = "simnet"

type Config struct {
	Ledger   LedgerConfig   `yaml:"ledger" envPrefix:"LEDGER_"`
	Run      RunConfig      `yaml:"run" envPrefix:"RUN_"`
	Accounts AccountsConfig `yaml:"accounts" envPrefix:"ACCOUNTS_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
}

type LedgerConfig struct {
	// Endpoint is "simnet" or the ledgerd JSON-RPC URL.
	Endpoint      string        `yaml:"endpoint" env:"ENDPOINT"`
	Token         string        `yaml:"token" env:"TOKEN"`
	PollRPS       float64       `yaml:"pollRPS" env:"POLL_RPS"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Mode          string        `yaml:"mode" env:"MODE"`
	RoundDuration time.Duration `yaml:"roundDuration" env:"ROUND_DURATION"`
}

type RunConfig struct {
	ID                 string `yaml:"id" env:"ID"`
	RoundBudget        uint64 `yaml:"roundBudget" env:"ROUND_BUDGET"`
	Price              uint64 `yaml:"price" env:"PRICE"`
	RoyaltyBasisPoints uint64 `yaml:"royaltyBasisPoints" env:"ROYALTY_BASIS_POINTS"`
	Amount             uint64 `yaml:"amount" env:"AMOUNT"`
	JournalPath        string `yaml:"journalPath" env:"JOURNAL_PATH"`
	Diagnostics        string `yaml:"diagnostics" env:"DIAGNOSTICS"`
}

type AccountsConfig struct {
	Keystore string `yaml:"keystore" env:"KEYSTORE"`
	Password string `yaml:"-" env:"PASSWORD"`
	// Funding is what ledgerd credits each keystore account at genesis.
	Funding uint64 `yaml:"funding" env:"FUNDING"`
}

type ServerConfig struct {
	Listen         string  `yaml:"listen" env:"LISTEN"`
	Token          string  `yaml:"token" env:"TOKEN"`
	RateLimitRPS   float64 `yaml:"rateLimitRPS" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rateLimitBurst" env:"RATE_LIMIT_BURST"`
}

func Default() Config {
	return Config{
		Ledger: LedgerConfig{
			Endpoint:      EndpointSimnet,
			PollRPS:       10,
			Timeout:       10 * time.Second,
			Mode:          "dev",
			RoundDuration: time.Second,
		},
		Run: RunConfig{
			ID:                 "demo",
			RoundBudget:        4,
			Price:              2_000_000,
			RoyaltyBasisPoints: 1000,
			Amount:             1,
			Diagnostics:        executor.DiagnosticsOnReject.String(),
		},
		Accounts: AccountsConfig{
			Funding: 100_000_000,
		},
		Server: ServerConfig{
			Listen:         "127.0.0.1:8787",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
	}
}

// Load reads path, or the first default location that exists when path is
// empty, over the defaults, then applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	candidates := []string{path}
	if path == "" {
		candidates = []string{"configs/royalty.yaml", "go-backend/configs/royalty.yaml"}
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if path == "" && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("config: read %s: %w", p, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", p, err)
		}
		break
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields whose ROYALTY_* variable is set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: %s: %s", field, fmt.Sprintf(format, args...)))
	}
	if ep := strings.TrimSpace(c.Ledger.Endpoint); ep != EndpointSimnet {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad("ledger.endpoint", "want %q or an http(s) URL, got %q", EndpointSimnet, ep)
		}
	}
	if c.Ledger.PollRPS <= 0 {
		bad("ledger.pollRPS", "must be positive")
	}
	if _, err := simnet.ParseMode(c.Ledger.Mode); err != nil {
		bad("ledger.mode", "%v", err)
	}
	if c.Ledger.RoundDuration <= 0 {
		bad("ledger.roundDuration", "must be positive")
	}
	if strings.TrimSpace(c.Run.ID) == "" {
		bad("run.id", "is required")
	}
	if c.Run.RoundBudget == 0 {
		bad("run.roundBudget", "must be positive")
	}
	if c.Run.Price == 0 {
		bad("run.price", "must be positive")
	}
	if c.Run.RoyaltyBasisPoints > contracts.MaxBasisPoints {
		bad("run.royaltyBasisPoints", "%d exceeds %d", c.Run.RoyaltyBasisPoints, contracts.MaxBasisPoints)
	}
	if c.Run.Amount == 0 {
		bad("run.amount", "must be positive")
	}
	if _, err := executor.ParseDiagnosticsPolicy(c.Run.Diagnostics); err != nil {
		bad("run.diagnostics", "%v", err)
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		bad("server.rateLimit", "must not be negative")
	}
	return errors.Join(errs...)
}

func (c Config) Diagnostics() executor.DiagnosticsPolicy {
	p, _ := executor.ParseDiagnosticsPolicy(c.Run.Diagnostics)
	return p
}

func (c Config) SimnetMode() simnet.Mode {
	m, _ := simnet.ParseMode(c.Ledger.Mode)
	return m
}

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rawblock/wallet-risk-engine/internal/heuristics"
	"github.com/shopspring/decimal"
)

// Config is the process configuration, read from the environment
// (optionally seeded from a .env file). Secrets have no defaults.
type Config struct {
	Port     string `env:"PORT" envDefault:"5339"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`

	EtherscanAPIKey  string `env:"ETHERSCAN_API_KEY"`
	EtherscanURL     string `env:"ETHERSCAN_URL" envDefault:"https://api.etherscan.io/api"`
	TransactionCount int    `env:"TRANSACTION_COUNT" envDefault:"100"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"wallet-risk-assessments"`

	APIAuthToken    string `env:"API_AUTH_TOKEN"`
	AllowedOrigins  string `env:"ALLOWED_ORIGINS"`
	RateLimitPerMin int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	RateLimitBurst  int    `env:"RATE_LIMIT_BURST" envDefault:"10"`

	EngineWorkers     int           `env:"ENGINE_WORKERS" envDefault:"1"`
	WalletAgeEstimate time.Duration `env:"WALLET_AGE_ESTIMATE" envDefault:"8760h"`

	WatchWallets  []string      `env:"WATCH_WALLETS" envSeparator:","`
	WatchInterval time.Duration `env:"WATCH_INTERVAL" envDefault:"5m"`

	BlacklistFile string   `env:"BLACKLIST_FILE"`
	Blacklist     []string `env:"BLACKLIST" envSeparator:"," envDefault:"0x0000000000000000000000000000000000000000,0x1111111111111111111111111111111111111111"`

	LargeTxEther           decimal.Decimal `env:"LARGE_TX_ETHER" envDefault:"10"`
	FeeRatioLimit          decimal.Decimal `env:"FEE_RATIO_LIMIT" envDefault:"0.05"`
	FrequentTxCountLimit   int             `env:"FREQUENT_TX_COUNT_LIMIT" envDefault:"50"`
	LowBalanceCeilingEther decimal.Decimal `env:"LOW_BALANCE_CEILING_ETHER" envDefault:"0.1"`
	LowBalanceSpendRatio   decimal.Decimal `env:"LOW_BALANCE_SPEND_RATIO" envDefault:"0.5"`
	NewWalletWindow        time.Duration   `env:"NEW_WALLET_WINDOW" envDefault:"720h"`
	DiversityLimit         int             `env:"DIVERSITY_LIMIT" envDefault:"100"`
	RepetitionLimit        int             `env:"REPETITION_LIMIT" envDefault:"10"`
}

// BlacklistEntry is one configured address with an optional label.
type BlacklistEntry struct {
	Address string
	Label   string
}

// Load reads .env (if present) and the process environment.
// The boolean reports whether a .env file was found.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, dotenv, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, dotenv, err
	}
	return cfg, dotenv, nil
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TransactionCount <= 0 || c.TransactionCount > 10000 {
		return fmt.Errorf("TRANSACTION_COUNT must be in 1..10000, got %d", c.TransactionCount)
	}
	if c.EngineWorkers <= 0 {
		return fmt.Errorf("ENGINE_WORKERS must be positive, got %d", c.EngineWorkers)
	}
	if c.RateLimitPerMin <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d/min burst %d", c.RateLimitPerMin, c.RateLimitBurst)
	}
	if c.WalletAgeEstimate < 0 {
		return fmt.Errorf("WALLET_AGE_ESTIMATE must not be negative")
	}
	if len(c.WatchWallets) > 0 && c.WatchInterval < time.Second {
		return fmt.Errorf("WATCH_INTERVAL must be at least 1s, got %s", c.WatchInterval)
	}
	for _, w := range c.WatchWallets {
		if !common.IsHexAddress(strings.TrimSpace(w)) {
			return fmt.Errorf("WATCH_WALLETS: not a hex address: %s", w)
		}
	}
	return nil
}

// BlacklistEntries merges BLACKLIST with the lines of BLACKLIST_FILE.
// Every address must be a 20-byte hex address.
func (c Config) BlacklistEntries() ([]BlacklistEntry, error) {
	var entries []BlacklistEntry
	for _, a := range c.Blacklist {
		if strings.TrimSpace(a) == "" {
			continue
		}
		entries = append(entries, BlacklistEntry{Address: a, Label: "config"})
	}

	if c.BlacklistFile != "" {
		f, err := os.Open(c.BlacklistFile)
		if err != nil {
			return nil, fmt.Errorf("open blacklist file: %w", err)
		}
		defer f.Close()
		fromFile, err := ParseBlacklist(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.BlacklistFile, err)
		}
		entries = append(entries, fromFile...)
	}

	for i, e := range entries {
		if !common.IsHexAddress(strings.TrimSpace(e.Address)) {
			return nil, &heuristics.ConfigurationError{Field: "blacklist", Reason: "not a hex address: " + e.Address}
		}
		entries[i].Address = heuristics.NormalizeAddress(e.Address)
	}
	return entries, nil
}

// ParseBlacklist reads "address [label...]" lines. Blank lines and
// lines starting with # are ignored.
func ParseBlacklist(r io.Reader) ([]BlacklistEntry, error) {
	var entries []BlacklistEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		entries = append(entries, BlacklistEntry{
			Address: fields[0],
			Label:   strings.Join(fields[1:], " "),
		})
	}
	return entries, sc.Err()
}

// Thresholds builds the rule thresholds with the given blacklist.
func (c Config) Thresholds(blacklist heuristics.Blacklist) (heuristics.Thresholds, error) {
	th := heuristics.Thresholds{
		LargeTxEther:           c.LargeTxEther,
		FeeRatioLimit:          c.FeeRatioLimit,
		FrequentTxCountLimit:   c.FrequentTxCountLimit,
		LowBalanceCeilingEther: c.LowBalanceCeilingEther,
		LowBalanceSpendRatio:   c.LowBalanceSpendRatio,
		NewWalletWindow:        c.NewWalletWindow,
		DiversityLimit:         c.DiversityLimit,
		RepetitionLimit:        c.RepetitionLimit,
		Blacklist:              blacklist,
	}
	if err := th.Validate(); err != nil {
		return heuristics.Thresholds{}, err
	}
	return th, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rawblock/wallet-risk-engine/internal/heuristics"
	"github.com/shopspring/decimal"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Port != "5339" || cfg.TransactionCount != 100 || cfg.EngineWorkers != 1 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.WalletAgeEstimate != 365*24*time.Hour {
		t.Errorf("WalletAgeEstimate = %v", cfg.WalletAgeEstimate)
	}

	th, err := cfg.Thresholds(heuristics.NewBlacklist())
	if err != nil {
		t.Fatalf("Thresholds() error = %v", err)
	}
	def := heuristics.DefaultThresholds()
	if !th.LargeTxEther.Equal(def.LargeTxEther) || !th.FeeRatioLimit.Equal(def.FeeRatioLimit) ||
		!th.LowBalanceCeilingEther.Equal(def.LowBalanceCeilingEther) || !th.LowBalanceSpendRatio.Equal(def.LowBalanceSpendRatio) {
		t.Errorf("Decimal thresholds differ from defaults: %+v", th)
	}
	if th.NewWalletWindow != def.NewWalletWindow || th.DiversityLimit != def.DiversityLimit ||
		th.RepetitionLimit != def.RepetitionLimit || th.FrequentTxCountLimit != def.FrequentTxCountLimit {
		t.Errorf("Integer thresholds differ from defaults: %+v", th)
	}

	entries, err := cfg.BlacklistEntries()
	if err != nil {
		t.Fatalf("BlacklistEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected the two default blacklist entries, got %d", len(entries))
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"LARGE_TX_ETHER":    "2.5",
		"REPETITION_LIMIT":  "3",
		"NEW_WALLET_WINDOW": "48h",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"BLACKLIST":         "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !cfg.LargeTxEther.Equal(decimal.RequireFromString("2.5")) || cfg.RepetitionLimit != 3 || cfg.NewWalletWindow != 48*time.Hour {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}

	entries, err := cfg.BlacklistEntries()
	if err != nil {
		t.Fatalf("BlacklistEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Address != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("Unexpected entries %+v", entries)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"Zero transaction count", map[string]string{"TRANSACTION_COUNT": "0"}},
		{"Zero workers", map[string]string{"ENGINE_WORKERS": "0"}},
		{"Bad decimal", map[string]string{"FEE_RATIO_LIMIT": "five percent"}},
		{"Bad duration", map[string]string{"NEW_WALLET_WINDOW": "a month"}},
		{"Bad watched wallet", map[string]string{"WATCH_WALLETS": "0x00000000000000000000000000000000000000aa,vitalik.eth"}},
		{"Watch interval too short", map[string]string{"WATCH_WALLETS": "0x00000000000000000000000000000000000000aa", "WATCH_INTERVAL": "10ms"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(tt.vars); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestThresholds_NegativeIsConfigurationError(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"DIVERSITY_LIMIT": "-4"})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	_, err = cfg.Thresholds(heuristics.NewBlacklist())
	if !errors.Is(err, heuristics.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestBlacklistEntries_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	content := strings.Join([]string{
		"# known drainers",
		"0x1234567890123456789012345678901234567890 Drainer kit",
		"",
		"0x0987654321098765432109876543210987654321",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(map[string]string{"BLACKLIST_FILE": path})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	entries, err := cfg.BlacklistEntries()
	if err != nil {
		t.Fatalf("BlacklistEntries() error = %v", err)
	}
	// Two defaults from BLACKLIST, then the file in order.
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %+v", entries)
	}
	if entries[2].Address != "0x1234567890123456789012345678901234567890" || entries[2].Label != "Drainer kit" || entries[3].Label != "" {
		t.Errorf("Unexpected file entries %+v", entries[2:])
	}
}

func TestBlacklistEntries_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"BLACKLIST_FILE": filepath.Join(t.TempDir(), "absent.txt")})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if _, err := cfg.BlacklistEntries(); err == nil {
		t.Errorf("Expected error for missing file")
	}
}

func TestBlacklistEntries_RejectsNonHex(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"BLACKLIST": "0xnothex"})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	_, err = cfg.BlacklistEntries()
	var cerr *heuristics.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Errorf("Expected ConfigurationError, got %v", err)
	}
}

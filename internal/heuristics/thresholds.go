package heuristics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rule Thresholds
//
// Every numeric boundary the rules compare against lives here and is
// passed into Evaluate per call. Ether amounts and ratios are decimals so
// that comparisons against Wei-derived values are exact:
//
//   LargeTxEther            value >= limit            → LargeTransaction
//   FeeRatioLimit           fee > value × ratio       → HighGasFee
//   FrequentTxCountLimit    batch size > limit        → FrequentTransaction
//   LowBalanceCeilingEther  balance < ceiling AND
//   LowBalanceSpendRatio    value > balance × ratio   → HighSpendLowBalance
//   NewWalletWindow         created within window     → LargeTransactionNewWallet
//   DiversityLimit          distinct counterparts > N → TransactionDiversity
//   RepetitionLimit         one counterpart > N times → RepetitiveTransactions

// Thresholds configures the rule set for one evaluation.
type Thresholds struct {
	LargeTxEther           decimal.Decimal `json:"largeTxEther"`
	FeeRatioLimit          decimal.Decimal `json:"feeRatioLimit"`
	FrequentTxCountLimit   int             `json:"frequentTxCountLimit"`
	LowBalanceCeilingEther decimal.Decimal `json:"lowBalanceCeilingEther"`
	LowBalanceSpendRatio   decimal.Decimal `json:"lowBalanceSpendRatio"`
	NewWalletWindow        time.Duration   `json:"newWalletWindow"`
	DiversityLimit         int             `json:"diversityLimit"`
	RepetitionLimit        int             `json:"repetitionLimit"`
	Blacklist              Blacklist       `json:"blacklist"`
}

// DefaultNewWalletWindow is the age under which a wallet counts as new.
const DefaultNewWalletWindow = 30 * 24 * time.Hour

// DefaultThresholds returns the stock rule configuration with an empty blacklist.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeTxEther:           decimal.NewFromInt(10),
		FeeRatioLimit:          decimal.RequireFromString("0.05"),
		FrequentTxCountLimit:   50,
		LowBalanceCeilingEther: decimal.RequireFromString("0.1"),
		LowBalanceSpendRatio:   decimal.RequireFromString("0.5"),
		NewWalletWindow:        DefaultNewWalletWindow,
		DiversityLimit:         100,
		RepetitionLimit:        10,
		Blacklist:              NewBlacklist(),
	}
}

// Validate rejects threshold sets that would silently produce wrong results.
func (t Thresholds) Validate() error {
	decimals := []struct {
		field string
		value decimal.Decimal
	}{
		{"largeTxEther", t.LargeTxEther},
		{"feeRatioLimit", t.FeeRatioLimit},
		{"lowBalanceCeilingEther", t.LowBalanceCeilingEther},
		{"lowBalanceSpendRatio", t.LowBalanceSpendRatio},
	}
	for _, d := range decimals {
		if d.value.IsNegative() {
			return &ConfigurationError{Field: d.field, Reason: "must not be negative, got " + d.value.String()}
		}
	}

	ints := []struct {
		field string
		value int
	}{
		{"frequentTxCountLimit", t.FrequentTxCountLimit},
		{"diversityLimit", t.DiversityLimit},
		{"repetitionLimit", t.RepetitionLimit},
	}
	for _, n := range ints {
		if n.value < 0 {
			return &ConfigurationError{Field: n.field, Reason: "must not be negative"}
		}
	}

	if t.NewWalletWindow < 0 {
		return &ConfigurationError{Field: "newWalletWindow", Reason: "must not be negative, got " + t.NewWalletWindow.String()}
	}
	return nil
}

package heuristics

import (
	"time"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
)

// Per-Transaction Rule Evaluator
//
// Eight independent heuristics are applied to one record against the
// wallet context. Any subset may fire; a record can appear under several
// categories at once. Evaluation order fixes the order of findings for a
// single record:
//
//   1. BlacklistedAddress        from or to is blacklisted
//   2. SelfTransaction           to == from (contract creation never matches)
//   3. FailedTransaction         reverted on-chain
//   4. HighGasFee                fee > value × feeRatioLimit
//   5. FrequentTransaction       batch size > frequentTxCountLimit
//   6. HighSpendLowBalance       low balance and value > balance × spendRatio
//   7. LargeTransaction          value >= largeTxEther
//   8. LargeTransactionNewWallet rule 7 on a wallet younger than newWalletWindow
//
// Rule 5 is a property of the batch, not of the record: when the wallet
// is too active every record carries it.

// EvaluateTransaction applies the per-transaction rules to rec.
// batchSize is the number of valid records in the batch and asOf is the
// evaluation time used to judge wallet age.
func EvaluateTransaction(rec models.TransactionRecord, wallet models.WalletContext, batchSize int, th Thresholds, asOf time.Time) []models.Finding {
	var findings []models.Finding
	emit := func(c models.Category, detail string) {
		findings = append(findings, models.Finding{Category: c, Detail: detail, TxHash: rec.Hash})
	}

	value := rec.ValueEther()

	// ─── Blacklist ───────────────────────────────────────────────────
	if th.Blacklist.Contains(rec.To) {
		emit(models.CategoryBlacklistedAddress, "Address: "+rec.To)
	} else if th.Blacklist.Contains(rec.From) {
		emit(models.CategoryBlacklistedAddress, "Address: "+rec.From)
	}

	// ─── Self transfer ───────────────────────────────────────────────
	if rec.HasTo() && rec.To == rec.From {
		emit(models.CategorySelfTransaction, rec.To)
	}

	// ─── Reverted ────────────────────────────────────────────────────
	if rec.IsError {
		emit(models.CategoryFailedTransaction, "Transaction failed")
	}

	// ─── Fee ratio ───────────────────────────────────────────────────
	// A zero-value transfer makes the ratio infinite, so any positive fee fires.
	fee := rec.FeeEther()
	if fee.GreaterThan(value.Mul(th.FeeRatioLimit)) {
		emit(models.CategoryHighGasFee, "Fee: "+fee.StringFixed(4)+" ETH")
	}

	// ─── Batch activity ──────────────────────────────────────────────
	if batchSize > th.FrequentTxCountLimit {
		emit(models.CategoryFrequentTransaction, "Excessive transaction activity")
	}

	// ─── Spend vs balance ────────────────────────────────────────────
	balance := wallet.CurrentBalanceEther
	if balance.LessThan(th.LowBalanceCeilingEther) && value.GreaterThan(balance.Mul(th.LowBalanceSpendRatio)) {
		emit(models.CategoryHighSpendLowBalance, "Value: "+value.StringFixed(4)+" ETH")
	}

	// ─── Size ────────────────────────────────────────────────────────
	if value.GreaterThanOrEqual(th.LargeTxEther) {
		emit(models.CategoryLargeTransaction, "Value: "+value.StringFixed(4)+" ETH")
		if IsNewWallet(wallet, th.NewWalletWindow, asOf) {
			emit(models.CategoryLargeTransactionNewWallet, "Value: "+value.StringFixed(4)+" ETH")
		}
	}

	return findings
}

// IsNewWallet reports whether the wallet was created within window before asOf.
func IsNewWallet(wallet models.WalletContext, window time.Duration, asOf time.Time) bool {
	return !wallet.CreationDate.Before(asOf.Add(-window))
}

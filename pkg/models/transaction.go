package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// WeiExponent is the decimal exponent of one Wei in Ether (1 ETH = 10^18 Wei).
const WeiExponent = -18

// RawTransaction is a transaction as delivered by an explorer API
// (Etherscan txlist shape). All numeric fields are decimal strings.
type RawTransaction struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`                // Empty for contract creation
	Value     string `json:"value"`             // Wei
	GasUsed   string `json:"gasUsed,omitempty"` // Absent → fee 0
	GasPrice  string `json:"gasPrice"`          // Wei per gas unit
	IsError   string `json:"isError"`           // "0" or "1"
	TimeStamp string `json:"timeStamp"`         // Unix seconds
}

// TransactionRecord is a validated, normalized transaction. Addresses are lowercase.
type TransactionRecord struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to,omitempty"` // Empty for contract creation
	ValueWei    *big.Int  `json:"valueWei"`
	GasUsed     *big.Int  `json:"gasUsed,omitempty"` // nil when absent
	GasPriceWei *big.Int  `json:"gasPriceWei"`
	IsError     bool      `json:"isError"`
	Timestamp   time.Time `json:"timestamp"`
}

// HasTo reports whether the transaction has a destination address.
func (r TransactionRecord) HasTo() bool {
	return r.To != ""
}

// ValueEther is the transferred value in Ether, exact.
func (r TransactionRecord) ValueEther() decimal.Decimal {
	return WeiToEther(r.ValueWei)
}

// FeeWei is gasUsed × gasPrice, or zero when gasUsed is absent.
func (r TransactionRecord) FeeWei() *big.Int {
	if r.GasUsed == nil || r.GasPriceWei == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(r.GasUsed, r.GasPriceWei)
}

// FeeEther is the network fee in Ether, exact.
func (r TransactionRecord) FeeEther() decimal.Decimal {
	return WeiToEther(r.FeeWei())
}

// WeiToEther converts a Wei amount to Ether without rounding.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, WeiExponent)
}

// WalletContext describes the monitored wallet for one evaluation run.
type WalletContext struct {
	Address             string          `json:"address"`
	CreationDate        time.Time       `json:"creationDate"`
	CurrentBalanceEther decimal.Decimal `json:"currentBalanceEther"`
}

// Finding is one rule match. TxHash is empty for corpus-level findings.
type Finding struct {
	Category Category `json:"category"`
	Detail   string   `json:"detail"`
	TxHash   string   `json:"txHash,omitempty"`
}

// SkippedRecord describes a raw record rejected during validation.
type SkippedRecord struct {
	Index  int    `json:"index"`
	Hash   string `json:"hash,omitempty"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Assessment is the engine output for one wallet batch.
type Assessment struct {
	ID                 string          `json:"id,omitempty"`
	Wallet             WalletContext   `json:"wallet"`
	Findings           []Finding       `json:"findings"`
	Counts             Counts          `json:"counts"`
	RecordCount        int             `json:"recordCount"`
	SkippedRecordCount int             `json:"skippedRecordCount"`
	Skipped            []SkippedRecord `json:"skipped,omitempty"`
	Summary            *Summary        `json:"summary,omitempty"`
	EvaluatedAt        time.Time       `json:"evaluatedAt"`
}

// TxValue pairs a transaction hash with its Ether value.
type TxValue struct {
	Hash  string          `json:"hash"`
	Value decimal.Decimal `json:"valueEther"`
}

// DailyCount is the number of transactions mined on one UTC day.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Summary holds descriptive statistics over a batch, for presentation.
type Summary struct {
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	TotalValue     decimal.Decimal `json:"totalValueEther"`
	AverageValue   decimal.Decimal `json:"averageValueEther"`
	MaxValue       decimal.Decimal `json:"maxValueEther"`
	TotalFees      decimal.Decimal `json:"totalFeesEther"`
	Largest        []TxValue       `json:"largest"`
	HourlyActivity [24]int         `json:"hourlyActivity"` // UTC hour of day
	DailyActivity  []DailyCount    `json:"dailyActivity"`
	Counterparts   int             `json:"counterparts"`
}

package heuristics

import (
	"errors"
	"time"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Wallet Risk Engine
//
// Evaluate runs one batch end to end:
//
//   validate thresholds ─► normalize records (skip + count bad ones)
//        ─► per-record rules ┐
//        ─► counterpart histogram ┴─► aggregate ─► Assessment
//
// The per-record rules are independent, so with WithWorkers(n) the batch
// is split into contiguous shards. Each shard writes findings into its own
// slots of a record-indexed slice and builds a partial histogram; the
// histograms are summed before corpus thresholds are applied. Output is
// identical for every worker count.

// minShardSize keeps tiny batches on a single goroutine.
const minShardSize = 64

type options struct {
	now     func() time.Time
	workers int
	summary bool
}

// Option tunes a single Evaluate call.
type Option func(*options)

// WithClock sets the evaluation time source (default time.Now).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithWorkers shards per-record evaluation across n goroutines.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSummary attaches descriptive batch statistics to the assessment.
func WithSummary() Option {
	return func(o *options) { o.summary = true }
}

// Evaluate classifies raws for wallet under th.
//
// A *ConfigurationError is returned before any record is touched when the
// thresholds or the wallet context are unusable. Malformed records never
// fail the call: they are listed in Skipped and counted in
// SkippedRecordCount. Inputs are not modified.
func Evaluate(wallet models.WalletContext, th Thresholds, raws []models.RawTransaction, opts ...Option) (models.Assessment, error) {
	o := options{now: time.Now, workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	if err := th.Validate(); err != nil {
		return models.Assessment{}, err
	}
	if wallet.CurrentBalanceEther.IsNegative() {
		return models.Assessment{}, &ConfigurationError{Field: "wallet.currentBalanceEther", Reason: "must not be negative"}
	}
	wallet.Address = NormalizeAddress(wallet.Address)
	if wallet.Address == "" {
		return models.Assessment{}, &ConfigurationError{Field: "wallet.address", Reason: "missing"}
	}

	asOf := o.now()
	records, skipped := NormalizeBatch(raws)

	perTx, hist := evaluateRecords(records, wallet, th, asOf, o.workers)
	findings, counts := Aggregate(perTx, hist.Findings(th))

	assessment := models.Assessment{
		Wallet:             wallet,
		Findings:           findings,
		Counts:             counts,
		RecordCount:        len(records),
		SkippedRecordCount: len(skipped),
		Skipped:            skipped,
		EvaluatedAt:        asOf,
	}
	if o.summary {
		summary := Summarize(records)
		assessment.Summary = &summary
	}
	return assessment, nil
}

// NormalizeBatch normalizes every raw record, keeping input order.
// Rejected records, including repeated hashes, are reported with their index.
func NormalizeBatch(raws []models.RawTransaction) ([]models.TransactionRecord, []models.SkippedRecord) {
	records := make([]models.TransactionRecord, 0, len(raws))
	var skipped []models.SkippedRecord
	seen := make(map[string]struct{}, len(raws))

	for i, raw := range raws {
		rec, err := NormalizeTransaction(raw)
		if err == nil {
			if _, dup := seen[rec.Hash]; dup {
				err = &ValidationError{Hash: rec.Hash, Field: "hash", Reason: "duplicate within batch"}
			}
		}
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Index = i
				skipped = append(skipped, models.SkippedRecord{Index: i, Hash: verr.Hash, Field: verr.Field, Reason: verr.Reason})
			}
			continue
		}
		seen[rec.Hash] = struct{}{}
		records = append(records, rec)
	}
	return records, skipped
}

func evaluateRecords(records []models.TransactionRecord, wallet models.WalletContext, th Thresholds, asOf time.Time, workers int) ([][]models.Finding, *CounterpartHistogram) {
	perTx := make([][]models.Finding, len(records))
	batchSize := len(records)

	shards := workers
	if maxShards := (len(records) + minShardSize - 1) / minShardSize; shards > maxShards {
		shards = maxShards
	}
	if shards <= 1 {
		hist := NewCounterpartHistogram()
		for i, rec := range records {
			perTx[i] = EvaluateTransaction(rec, wallet, batchSize, th, asOf)
			hist.Observe(i, rec)
		}
		return perTx, hist
	}

	shardSize := (len(records) + shards - 1) / shards
	partials := make([]*CounterpartHistogram, shards)

	var g errgroup.Group
	for s := 0; s < shards; s++ {
		lo := s * shardSize
		hi := min(lo+shardSize, len(records))
		g.Go(func() error {
			hist := NewCounterpartHistogram()
			for i := lo; i < hi; i++ {
				perTx[i] = EvaluateTransaction(records[i], wallet, batchSize, th, asOf)
				hist.Observe(i, records[i])
			}
			partials[s] = hist
			return nil
		})
	}
	// Shard workers never return an error.
	_ = g.Wait()

	merged := NewCounterpartHistogram()
	for _, p := range partials {
		if p != nil {
			merged.Merge(p)
		}
	}
	return perTx, merged
}

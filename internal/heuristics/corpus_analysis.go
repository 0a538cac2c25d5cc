package heuristics

import (
	"sort"
	"strconv"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
)

// Corpus-Level Counterpart Analysis
//
// Two signals need the whole batch: how many distinct counterparts the
// wallet sent to (diversity), and which counterparts it sent to over and
// over (repetition). Both are read off one destination histogram.
// Contract-creation records have no counterpart and are not counted.
//
// The histogram is mergeable, so shards can build partial histograms and
// combine them by summing counts. Thresholds are only applied after the
// merge. Each entry remembers the batch index where the address first
// appeared, which orders repetition findings deterministically.

type counterpartEntry struct {
	count int
	first int
}

// CounterpartHistogram counts how often each destination address occurs.
type CounterpartHistogram struct {
	entries map[string]*counterpartEntry
}

func NewCounterpartHistogram() *CounterpartHistogram {
	return &CounterpartHistogram{entries: make(map[string]*counterpartEntry)}
}

// Observe records rec at batch position index.
func (h *CounterpartHistogram) Observe(index int, rec models.TransactionRecord) {
	if !rec.HasTo() {
		return
	}
	e, ok := h.entries[rec.To]
	if !ok {
		h.entries[rec.To] = &counterpartEntry{count: 1, first: index}
		return
	}
	e.count++
	if index < e.first {
		e.first = index
	}
}

// Merge folds other into h.
func (h *CounterpartHistogram) Merge(other *CounterpartHistogram) {
	for addr, oe := range other.entries {
		e, ok := h.entries[addr]
		if !ok {
			h.entries[addr] = &counterpartEntry{count: oe.count, first: oe.first}
			continue
		}
		e.count += oe.count
		if oe.first < e.first {
			e.first = oe.first
		}
	}
}

// Distinct returns the number of distinct destination addresses.
func (h *CounterpartHistogram) Distinct() int {
	return len(h.entries)
}

// Count returns how many times addr appeared as a destination.
func (h *CounterpartHistogram) Count(addr string) int {
	if e, ok := h.entries[addr]; ok {
		return e.count
	}
	return 0
}

// Findings applies the diversity and repetition thresholds.
func (h *CounterpartHistogram) Findings(th Thresholds) []models.Finding {
	var findings []models.Finding

	if n := h.Distinct(); n > th.DiversityLimit {
		findings = append(findings, models.Finding{
			Category: models.CategoryTransactionDiversity,
			Detail:   "Interacted with " + strconv.Itoa(n) + " unique addresses",
		})
	}

	type repeated struct {
		addr string
		counterpartEntry
	}
	var reps []repeated
	for addr, e := range h.entries {
		if e.count > th.RepetitionLimit {
			reps = append(reps, repeated{addr: addr, counterpartEntry: *e})
		}
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].first < reps[j].first })

	for _, r := range reps {
		findings = append(findings, models.Finding{
			Category: models.CategoryRepetitiveTransactions,
			Detail:   "Repeated interactions with " + r.addr + " (" + strconv.Itoa(r.count) + " times)",
		})
	}
	return findings
}

// AnalyzeCorpus computes the corpus-level findings for records in one pass.
func AnalyzeCorpus(records []models.TransactionRecord, th Thresholds) []models.Finding {
	h := NewCounterpartHistogram()
	for i, rec := range records {
		h.Observe(i, rec)
	}
	return h.Findings(th)
}

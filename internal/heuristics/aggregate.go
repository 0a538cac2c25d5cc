package heuristics

import "github.com/rawblock/wallet-risk-engine/pkg/models"

// Aggregate concatenates per-record findings (in record order) followed by
// corpus findings and tallies them. The count for a category equals the
// number of its findings, not the number of distinct transactions.
// The returned slice is never nil.
func Aggregate(perTx [][]models.Finding, corpus []models.Finding) ([]models.Finding, models.Counts) {
	total := len(corpus)
	for _, fs := range perTx {
		total += len(fs)
	}

	findings := make([]models.Finding, 0, total)
	for _, fs := range perTx {
		findings = append(findings, fs...)
	}
	findings = append(findings, corpus...)

	counts := models.NewCounts()
	for _, f := range findings {
		counts[f.Category]++
	}
	return findings, counts
}

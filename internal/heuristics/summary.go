package heuristics

import (
	"sort"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"github.com/shopspring/decimal"
)

// topLargestCount is how many of the largest transfers a Summary lists.
const topLargestCount = 5

// Summarize derives descriptive statistics over a normalized batch:
// success/failure split, value and fee totals, the largest transfers and
// activity histograms by UTC hour and day. Records with a zero timestamp
// are left out of the activity histograms.
func Summarize(records []models.TransactionRecord) models.Summary {
	s := models.Summary{
		TotalValue:    decimal.Zero,
		AverageValue:  decimal.Zero,
		MaxValue:      decimal.Zero,
		TotalFees:     decimal.Zero,
		Largest:       []models.TxValue{},
		DailyActivity: []models.DailyCount{},
	}
	if len(records) == 0 {
		return s
	}

	daily := make(map[string]int)
	counterparts := make(map[string]struct{})
	values := make([]models.TxValue, 0, len(records))

	for _, rec := range records {
		if rec.IsError {
			s.Failed++
		} else {
			s.Successful++
		}

		v := rec.ValueEther()
		s.TotalValue = s.TotalValue.Add(v)
		s.TotalFees = s.TotalFees.Add(rec.FeeEther())
		if v.GreaterThan(s.MaxValue) {
			s.MaxValue = v
		}
		values = append(values, models.TxValue{Hash: rec.Hash, Value: v})

		if rec.HasTo() {
			counterparts[rec.To] = struct{}{}
		}
		if !rec.Timestamp.IsZero() {
			t := rec.Timestamp.UTC()
			s.HourlyActivity[t.Hour()]++
			daily[t.Format("2006-01-02")]++
		}
	}

	s.AverageValue = s.TotalValue.Div(decimal.NewFromInt(int64(len(records))))
	s.Counterparts = len(counterparts)

	sort.SliceStable(values, func(i, j int) bool { return values[i].Value.GreaterThan(values[j].Value) })
	if len(values) > topLargestCount {
		values = values[:topLargestCount]
	}
	s.Largest = values

	for date, n := range daily {
		s.DailyActivity = append(s.DailyActivity, models.DailyCount{Date: date, Count: n})
	}
	sort.Slice(s.DailyActivity, func(i, j int) bool { return s.DailyActivity[i].Date < s.DailyActivity[j].Date })

	return s
}

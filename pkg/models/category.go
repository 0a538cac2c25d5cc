package models

import "fmt"

// Category is one entry of the fixed risk-signal taxonomy.
// The numeric order is the reporting order.
type Category int

const (
	CategoryBlacklistedAddress Category = iota
	CategorySelfTransaction
	CategoryFailedTransaction
	CategoryHighGasFee
	CategoryFrequentTransaction
	CategoryHighSpendLowBalance
	CategoryLargeTransaction
	CategoryLargeTransactionNewWallet
	CategoryTransactionDiversity
	CategoryRepetitiveTransactions

	numCategories int = iota
)

var categoryNames = [numCategories]string{
	"BlacklistedAddress",
	"SelfTransaction",
	"FailedTransaction",
	"HighGasFee",
	"FrequentTransaction",
	"HighSpendLowBalance",
	"LargeTransaction",
	"LargeTransactionNewWallet",
	"TransactionDiversity",
	"RepetitiveTransactions",
}

// AllCategories returns the taxonomy in reporting order.
func AllCategories() []Category {
	all := make([]Category, numCategories)
	for i := range all {
		all[i] = Category(i)
	}
	return all
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < numCategories
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// MarshalText encodes the category by name (also used for JSON map keys).
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory maps a category name back to its value.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// Counts maps every category to its number of findings.
type Counts map[Category]int

// NewCounts returns a count map with all categories present at zero.
func NewCounts() Counts {
	counts := make(Counts, numCategories)
	for _, c := range AllCategories() {
		counts[c] = 0
	}
	return counts
}

// Total sums the counts over all categories.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

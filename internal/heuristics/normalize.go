package heuristics

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
)

// NormalizeTransaction validates a raw explorer record and converts it to
// a TransactionRecord: addresses lowercased, numeric strings parsed to
// integers. Mandatory fields are hash, from and value; gasUsed, gasPrice,
// to, isError and timeStamp may be empty.
//
// The returned error is a *ValidationError with Index -1.
func NormalizeTransaction(raw models.RawTransaction) (models.TransactionRecord, error) {
	hash := strings.TrimSpace(raw.Hash)
	invalid := func(field, reason string) error {
		return &ValidationError{Index: -1, Hash: hash, Field: field, Reason: reason}
	}

	if hash == "" {
		return models.TransactionRecord{}, invalid("hash", "missing")
	}
	from := NormalizeAddress(raw.From)
	if from == "" {
		return models.TransactionRecord{}, invalid("from", "missing")
	}

	value, err := parseWei(raw.Value)
	if err != nil {
		return models.TransactionRecord{}, invalid("value", err.Error())
	}
	if value == nil {
		return models.TransactionRecord{}, invalid("value", "missing")
	}

	gasUsed, err := parseWei(raw.GasUsed)
	if err != nil {
		return models.TransactionRecord{}, invalid("gasUsed", err.Error())
	}
	gasPrice, err := parseWei(raw.GasPrice)
	if err != nil {
		return models.TransactionRecord{}, invalid("gasPrice", err.Error())
	}
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	isError, err := parseErrorFlag(raw.IsError)
	if err != nil {
		return models.TransactionRecord{}, invalid("isError", err.Error())
	}

	var ts time.Time
	if s := strings.TrimSpace(raw.TimeStamp); s != "" {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil || secs < 0 {
			return models.TransactionRecord{}, invalid("timeStamp", "not a unix timestamp: "+s)
		}
		ts = time.Unix(secs, 0).UTC()
	}

	return models.TransactionRecord{
		Hash:        hash,
		From:        from,
		To:          NormalizeAddress(raw.To),
		ValueWei:    value,
		GasUsed:     gasUsed,
		GasPriceWei: gasPrice,
		IsError:     isError,
		Timestamp:   ts,
	}, nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

// parseWei parses a non-negative base-10 integer ("0x" prefix selects hex).
// An empty string yields nil, nil.
func parseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	if digits == "" || strings.ContainsAny(digits, "+-_") {
		return nil, parseError("not a non-negative integer: " + s)
	}

	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, parseError("not a non-negative integer: " + s)
	}
	return n, nil
}

func parseErrorFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	default:
		return false, parseError("expected 0 or 1, got " + s)
	}
}

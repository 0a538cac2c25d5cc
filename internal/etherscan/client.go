package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.etherscan.io/api"

	noTransactions = "No transactions found"
	maxErrorBody   = 512
)

// ErrMissingAPIKey is returned when the client has no key configured.
var ErrMissingAPIKey = errors.New("etherscan api key not configured")

// APIError is a well-formed response whose status is not "1".
type APIError struct {
	Action  string
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("etherscan %s: %s (%s)", e.Action, e.Message, e.Result)
}

// Client reads account data from the Etherscan account API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Balance returns the latest balance of addr in Ether, exact.
func (c *Client) Balance(ctx context.Context, addr string) (decimal.Decimal, error) {
	env, err := c.call(ctx, url.Values{
		"module":  {"account"},
		"action":  {"balance"},
		"address": {addr},
		"tag":     {"latest"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	if env.Status != "1" {
		return decimal.Zero, apiError("balance", env)
	}

	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return decimal.Zero, fmt.Errorf("etherscan balance: decode result: %w", err)
	}
	wei, ok := new(big.Int).SetString(result, 10)
	if !ok || wei.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("etherscan balance: invalid wei amount %q", result)
	}
	return models.WeiToEther(wei), nil
}

// Transactions returns up to count normal transactions of addr, newest first.
// An account with no history yields an empty slice.
func (c *Client) Transactions(ctx context.Context, addr string, count int) ([]models.RawTransaction, error) {
	if count <= 0 {
		return nil, fmt.Errorf("etherscan txlist: count must be positive, got %d", count)
	}
	env, err := c.call(ctx, url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {addr},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"page":       {"1"},
		"offset":     {strconv.Itoa(count)},
		"sort":       {"desc"},
	})
	if err != nil {
		return nil, err
	}
	if env.Status != "1" {
		if env.Message == noTransactions {
			return []models.RawTransaction{}, nil
		}
		return nil, apiError("txlist", env)
	}

	var txs []models.RawTransaction
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, fmt.Errorf("etherscan txlist: decode result: %w", err)
	}
	if len(txs) > count {
		txs = txs[:count]
	}
	c.log.Debug().Str("address", addr).Int("transactions", len(txs)).Msg("Fetched transaction list")
	return txs, nil
}

func (c *Client) call(ctx context.Context, q url.Values) (envelope, error) {
	if c.apiKey == "" {
		return envelope{}, ErrMissingAPIKey
	}
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return envelope{}, fmt.Errorf("request creation error: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("etherscan %s: %w", q.Get("action"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return envelope{}, fmt.Errorf("etherscan %s: HTTP %d: %s", q.Get("action"), resp.StatusCode, body)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("etherscan %s: bad response format: %w", q.Get("action"), err)
	}
	return env, nil
}

func apiError(action string, env envelope) error {
	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil {
		result = string(env.Result)
	}
	return &APIError{Action: action, Message: env.Message, Result: result}
}

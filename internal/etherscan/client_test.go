package etherscan

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", zerolog.New(io.Discard))
}

func TestBalance(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "balance" || q.Get("apikey") != "test-key" || q.Get("address") != "0xabc" {
			t.Errorf("Unexpected query %v", q)
		}
		_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":"1234500000000000000"}`)
	})

	bal, err := c.Balance(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if bal.String() != "1.2345" {
		t.Errorf("Balance = %s, want 1.2345", bal)
	}
}

func TestBalance_APIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)
	})

	_, err := c.Balance(context.Background(), "0xabc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Result != "Invalid API Key" {
		t.Errorf("Expected APIError, got %v", err)
	}
}

func TestTransactions(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "txlist" || q.Get("offset") != "2" || q.Get("sort") != "desc" {
			t.Errorf("Unexpected query %v", q)
		}
		_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":[
			{"hash":"0x2","from":"0xa","to":"0xb","value":"10","gasUsed":"21000","gasPrice":"1","isError":"0","timeStamp":"1717243200"},
			{"hash":"0x1","from":"0xb","to":"","value":"0","gasUsed":"50000","gasPrice":"1","isError":"1","timeStamp":"1717243100"},
			{"hash":"0x0","from":"0xb","to":"0xa","value":"0","gasUsed":"1","gasPrice":"1","isError":"0","timeStamp":"1717243000"}
		]}`)
	})

	txs, err := c.Transactions(context.Background(), "0xa", 2)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("Expected list capped at 2, got %d", len(txs))
	}
	if txs[0].Hash != "0x2" || txs[0].GasUsed != "21000" || txs[1].IsError != "1" || txs[1].To != "" {
		t.Errorf("Unexpected decode %+v", txs)
	}
}

func TestTransactions_NoHistory(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"0","message":"No transactions found","result":[]}`)
	})

	txs, err := c.Transactions(context.Background(), "0xa", 10)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if txs == nil || len(txs) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", txs)
	}
}

func TestTransactions_RateLimited(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
	})

	if _, err := c.Transactions(context.Background(), "0xa", 10); err == nil {
		t.Errorf("Expected error for rate-limited response")
	}
}

func TestCall_HTTPFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	if _, err := c.Balance(context.Background(), "0xa"); err == nil {
		t.Errorf("Expected error for HTTP 502")
	}
}

func TestCall_MissingKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", zerolog.New(io.Discard))
	if _, err := c.Balance(context.Background(), "0xa"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

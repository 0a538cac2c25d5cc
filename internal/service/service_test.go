package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/wallet-risk-engine/internal/db"
	"github.com/rawblock/wallet-risk-engine/internal/heuristics"
	"github.com/rawblock/wallet-risk-engine/internal/publish"
	"github.com/rawblock/wallet-risk-engine/internal/watchlist"
	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	walletAddr = "0x00000000000000000000000000000000000000aa"
	peerAddr   = "0x00000000000000000000000000000000000000bb"
	badAddr    = "0x00000000000000000000000000000000000000cc"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	balance decimal.Decimal
	txs     []models.RawTransaction
	err     error
	count   int
}

func (f *fakeFetcher) Balance(ctx context.Context, addr string) (decimal.Decimal, error) {
	return f.balance, f.err
}

func (f *fakeFetcher) Transactions(ctx context.Context, addr string, count int) ([]models.RawTransaction, error) {
	f.count = count
	return f.txs, f.err
}

type fakeStore struct {
	mu         sync.Mutex
	saved      map[string]models.Assessment
	blacklist  map[string]string
	failSaving bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]models.Assessment{}, blacklist: map[string]string{}}
}

func (f *fakeStore) SaveAssessment(ctx context.Context, a models.Assessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaving {
		return errors.New("connection refused")
	}
	f.saved[a.ID] = a
	return nil
}

func (f *fakeStore) GetAssessment(ctx context.Context, id string) (models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.saved[id]
	if !ok {
		return models.Assessment{}, db.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListAssessments(ctx context.Context, wallet string, page, limit int) ([]db.HistoryEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.HistoryEntry
	for _, a := range f.saved {
		if a.Wallet.Address == wallet {
			out = append(out, db.HistoryEntry{ID: a.ID, Wallet: wallet, FindingCount: len(a.Findings)})
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) SaveBlacklistEntry(ctx context.Context, address, label, source string) error {
	f.blacklist[address] = label
	return nil
}

func (f *fakeStore) DeleteBlacklistEntry(ctx context.Context, address string) error {
	delete(f.blacklist, address)
	return nil
}

type fakeSink struct {
	events []string
}

func (f *fakeSink) Emit(ctx context.Context, typ, key string, v any) error {
	f.events = append(f.events, typ+":"+key)
	return nil
}

func (f *fakeSink) Close() error { return nil }

type fakeHub struct {
	frames [][]byte
}

func (f *fakeHub) Broadcast(data []byte) { f.frames = append(f.frames, data) }

func newTestService(t *testing.T, deps Deps) *Service {
	t.Helper()
	svc, err := New(Options{
		Thresholds:        heuristics.DefaultThresholds(),
		TransactionCount:  100,
		WalletAgeEstimate: 365 * 24 * time.Hour,
	}, watchlist.New(), deps, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	svc.now = func() time.Time { return testNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return []string{
			"3f1c2a8e-0000-4000-8000-000000000001",
			"3f1c2a8e-0000-4000-8000-000000000002",
			"3f1c2a8e-0000-4000-8000-000000000003",
		}[ids-1]
	}
	return svc
}

func raw(hash, from, to, value string) models.RawTransaction {
	return models.RawTransaction{Hash: hash, From: from, To: to, Value: value, IsError: "0", TimeStamp: "1717243200"}
}

func TestAssessWallet(t *testing.T) {
	fetcher := &fakeFetcher{
		balance: decimal.RequireFromString("5"),
		txs: []models.RawTransaction{
			raw("0x1", walletAddr, peerAddr, "20000000000000000000"),
			raw("0x2", walletAddr, walletAddr, "1"),
		},
	}
	store, sink, hub := newFakeStore(), &fakeSink{}, &fakeHub{}
	svc := newTestService(t, Deps{Fetcher: fetcher, Store: store, Sink: sink, Hub: hub})

	a, err := svc.AssessWallet(context.Background(), walletAddr)
	if err != nil {
		t.Fatalf("AssessWallet() error = %v", err)
	}

	if fetcher.count != 100 {
		t.Errorf("Fetched %d transactions, want 100", fetcher.count)
	}
	if a.ID == "" || a.Summary == nil {
		t.Errorf("Assessment missing ID or summary: %+v", a)
	}
	if !a.Wallet.CreationDate.Equal(testNow.Add(-365 * 24 * time.Hour)) {
		t.Errorf("CreationDate = %v", a.Wallet.CreationDate)
	}
	// A one-year-old wallet is outside the 30 day window.
	if a.Counts[models.CategoryLargeTransaction] != 1 || a.Counts[models.CategoryLargeTransactionNewWallet] != 0 {
		t.Errorf("Unexpected counts %v", a.Counts)
	}
	if a.Counts[models.CategorySelfTransaction] != 1 {
		t.Errorf("Expected one self transaction, got %v", a.Counts)
	}

	if _, ok := store.saved[a.ID]; !ok {
		t.Errorf("Assessment not persisted")
	}
	if len(sink.events) != 1 || sink.events[0] != publish.EventAssessment+":"+walletAddr {
		t.Errorf("Unexpected events %v", sink.events)
	}
	if len(hub.frames) != 1 {
		t.Fatalf("Expected one broadcast frame, got %d", len(hub.frames))
	}
	var alert AssessmentAlert
	if err := json.Unmarshal(hub.frames[0], &alert); err != nil {
		t.Fatalf("Broadcast frame is not JSON: %v", err)
	}
	if alert.ID != a.ID || alert.FindingCount != len(a.Findings) {
		t.Errorf("Unexpected alert %+v", alert)
	}

	if st := svc.Stats(); st.Assessments != 1 || st.Findings != int64(len(a.Findings)) {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestAssessWallet_Errors(t *testing.T) {
	svc := newTestService(t, Deps{})
	if _, err := svc.AssessWallet(context.Background(), "0x123"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
	if _, err := svc.AssessWallet(context.Background(), walletAddr); !errors.Is(err, ErrFetcherUnavailable) {
		t.Errorf("Expected ErrFetcherUnavailable, got %v", err)
	}

	upstream := errors.New("rate limited")
	svc = newTestService(t, Deps{Fetcher: &fakeFetcher{err: upstream}})
	_, err := svc.AssessWallet(context.Background(), walletAddr)
	if !errors.Is(err, upstream) || !errors.Is(err, ErrUpstream) {
		t.Errorf("Expected wrapped upstream error, got %v", err)
	}
}

func TestAssessBatch_UsesLiveBlacklist(t *testing.T) {
	svc := newTestService(t, Deps{})
	wallet := models.WalletContext{Address: walletAddr, CreationDate: testNow.AddDate(-1, 0, 0), CurrentBalanceEther: decimal.NewFromInt(1)}
	batch := []models.RawTransaction{raw("0x1", walletAddr, badAddr, "1")}

	a, err := svc.AssessBatch(context.Background(), wallet, batch)
	if err != nil {
		t.Fatalf("AssessBatch() error = %v", err)
	}
	if a.Counts[models.CategoryBlacklistedAddress] != 0 {
		t.Errorf("Address not yet listed")
	}

	if _, err := svc.AddToBlacklist(context.Background(), badAddr, "scam"); err != nil {
		t.Fatalf("AddToBlacklist() error = %v", err)
	}
	a, _ = svc.AssessBatch(context.Background(), wallet, batch)
	if a.Counts[models.CategoryBlacklistedAddress] != 1 {
		t.Errorf("Expected blacklist hit after AddToBlacklist, got %v", a.Counts)
	}

	if err := svc.RemoveFromBlacklist(context.Background(), badAddr); err != nil {
		t.Fatalf("RemoveFromBlacklist() error = %v", err)
	}
	a, _ = svc.AssessBatch(context.Background(), wallet, batch)
	if a.Counts[models.CategoryBlacklistedAddress] != 0 {
		t.Errorf("Expected no hit after removal, got %v", a.Counts)
	}
}

func TestAssessBatch_ConfigurationError(t *testing.T) {
	svc := newTestService(t, Deps{})
	wallet := models.WalletContext{Address: walletAddr, CurrentBalanceEther: decimal.NewFromInt(-1)}

	_, err := svc.AssessBatch(context.Background(), wallet, nil)
	if !errors.Is(err, heuristics.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if svc.Stats().Assessments != 0 {
		t.Errorf("Failed call must not count as an assessment")
	}
}

func TestAssessBatch_StoreFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.failSaving = true
	svc := newTestService(t, Deps{Store: store})

	wallet := models.WalletContext{Address: walletAddr, CreationDate: testNow, CurrentBalanceEther: decimal.NewFromInt(1)}
	if _, err := svc.AssessBatch(context.Background(), wallet, nil); err != nil {
		t.Fatalf("AssessBatch() error = %v", err)
	}
	if svc.Stats().StoreErrors != 1 {
		t.Errorf("Expected one store error, got %+v", svc.Stats())
	}
}

func TestHistoryAndLookup(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, Deps{Store: store})
	wallet := models.WalletContext{Address: walletAddr, CreationDate: testNow, CurrentBalanceEther: decimal.NewFromInt(1)}

	a, err := svc.AssessBatch(context.Background(), wallet, nil)
	if err != nil {
		t.Fatalf("AssessBatch() error = %v", err)
	}

	got, err := svc.GetAssessment(context.Background(), a.ID)
	if err != nil || got.ID != a.ID {
		t.Errorf("GetAssessment() = %+v, %v", got, err)
	}
	if _, err := svc.GetAssessment(context.Background(), "3f1c2a8e-0000-4000-8000-0000000000ff"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetAssessment(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for malformed id, got %v", err)
	}

	entries, total, err := svc.History(context.Background(), walletAddr, 1, 50)
	if err != nil || total != 1 || len(entries) != 1 {
		t.Errorf("History() = %v, %d, %v", entries, total, err)
	}
}

func TestHistory_NoStore(t *testing.T) {
	svc := newTestService(t, Deps{})
	if _, _, err := svc.History(context.Background(), walletAddr, 1, 10); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.GetAssessment(context.Background(), "3f1c2a8e-0000-4000-8000-000000000001"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}

func TestBlacklistEdits(t *testing.T) {
	store, sink := newFakeStore(), &fakeSink{}
	svc := newTestService(t, Deps{Store: store, Sink: sink})

	added, err := svc.AddToBlacklist(context.Background(), "0x00000000000000000000000000000000000000CC", "scam")
	if err != nil || !added {
		t.Fatalf("AddToBlacklist() = %v, %v", added, err)
	}
	if store.blacklist[badAddr] != "scam" {
		t.Errorf("Entry not persisted in normalized form: %v", store.blacklist)
	}
	if len(svc.Blacklist()) != 1 {
		t.Errorf("Blacklist() = %v", svc.Blacklist())
	}

	if _, err := svc.AddToBlacklist(context.Background(), "nope", ""); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
	if err := svc.RemoveFromBlacklist(context.Background(), peerAddr); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := svc.RemoveFromBlacklist(context.Background(), badAddr); err != nil {
		t.Fatalf("RemoveFromBlacklist() error = %v", err)
	}
	if _, ok := store.blacklist[badAddr]; ok {
		t.Errorf("Entry not deleted from store")
	}

	want := []string{publish.EventBlacklistAdded + ":" + badAddr, publish.EventBlacklistRemoved + ":" + badAddr}
	if len(sink.events) != 2 || sink.events[0] != want[0] || sink.events[1] != want[1] {
		t.Errorf("Events = %v, want %v", sink.events, want)
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	th := heuristics.DefaultThresholds()
	th.RepetitionLimit = -1
	if _, err := New(Options{Thresholds: th, TransactionCount: 10}, nil, Deps{}, zerolog.Nop()); !errors.Is(err, heuristics.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(Options{Thresholds: heuristics.DefaultThresholds()}, nil, Deps{}, zerolog.Nop()); err == nil {
		t.Errorf("Expected error for zero transaction count")
	}
}

func TestIsAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{walletAddr, true},
		{"0xAbCdEf0123456789aBcDeF0123456789AbCdEf01", true},
		{"00000000000000000000000000000000000000aa", false},
		{"0x123", false},
		{"0xZZ000000000000000000000000000000000000aa", false},
	}
	for _, tt := range tests {
		if got := IsAddress(tt.in); got != tt.want {
			t.Errorf("IsAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rawblock/wallet-risk-engine/internal/db"
	"github.com/rawblock/wallet-risk-engine/internal/heuristics"
	"github.com/rawblock/wallet-risk-engine/internal/publish"
	"github.com/rawblock/wallet-risk-engine/internal/watchlist"
	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAddress is returned for input that is not a 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid ethereum address")
	// ErrFetcherUnavailable is returned when no chain data source is configured.
	ErrFetcherUnavailable = errors.New("chain data source not configured")
	// ErrStoreUnavailable is returned for history lookups without a database.
	ErrStoreUnavailable = errors.New("assessment store not configured")
	// ErrUpstream wraps failures of the chain data source.
	ErrUpstream = errors.New("upstream fetch failed")
	// ErrNotFound is returned when an assessment or blacklist entry does not exist.
	ErrNotFound = errors.New("not found")
)

// Fetcher reads live account data for a wallet.
type Fetcher interface {
	Balance(ctx context.Context, addr string) (decimal.Decimal, error)
	Transactions(ctx context.Context, addr string, count int) ([]models.RawTransaction, error)
}

// Store persists assessments and blacklist edits.
type Store interface {
	SaveAssessment(ctx context.Context, a models.Assessment) error
	GetAssessment(ctx context.Context, id string) (models.Assessment, error)
	ListAssessments(ctx context.Context, wallet string, page, limit int) ([]db.HistoryEntry, int, error)
	SaveBlacklistEntry(ctx context.Context, address, label, source string) error
	DeleteBlacklistEntry(ctx context.Context, address string) error
}

// Broadcaster pushes JSON frames to live subscribers.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Options carries the per-process settings of the service.
type Options struct {
	Thresholds        heuristics.Thresholds // Blacklist is ignored; the registry supplies it
	TransactionCount  int
	WalletAgeEstimate time.Duration
	Workers           int
}

// AssessmentAlert is the frame broadcast to stream subscribers.
type AssessmentAlert struct {
	ID           string        `json:"id"`
	Wallet       string        `json:"wallet"`
	RecordCount  int           `json:"recordCount"`
	FindingCount int           `json:"findingCount"`
	Counts       models.Counts `json:"counts"`
	EvaluatedAt  time.Time     `json:"evaluatedAt"`
}

// Stats is the service activity since boot.
type Stats struct {
	Assessments    int64 `json:"assessments"`
	Findings       int64 `json:"findings"`
	SkippedRecords int64 `json:"skippedRecords"`
	StoreErrors    int64 `json:"storeErrors"`
	PublishErrors  int64 `json:"publishErrors"`
}

// Service runs assessments and fans results out to the store, the event
// sink and stream subscribers. Store, sink, hub and fetcher are optional.
type Service struct {
	opts      Options
	blacklist *watchlist.Registry
	fetcher   Fetcher
	store     Store
	sink      publish.Sink
	hub       Broadcaster
	log       zerolog.Logger

	now   func() time.Time
	newID func() string

	// Activity counters (atomic for safe concurrent reads)
	assessments    atomic.Int64
	findings       atomic.Int64
	skippedRecords atomic.Int64
	storeErrors    atomic.Int64
	publishErrors  atomic.Int64
}

// Deps are the optional collaborators of a Service. Nil fields disable
// the matching feature.
type Deps struct {
	Fetcher Fetcher
	Store   Store
	Sink    publish.Sink
	Hub     Broadcaster
}

// New validates opts and builds a Service.
func New(opts Options, blacklist *watchlist.Registry, deps Deps, log zerolog.Logger) (*Service, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.TransactionCount <= 0 {
		return nil, fmt.Errorf("transaction count must be positive, got %d", opts.TransactionCount)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if blacklist == nil {
		blacklist = watchlist.New()
	}
	return &Service{
		opts:      opts,
		blacklist: blacklist,
		fetcher:   deps.Fetcher,
		store:     deps.Store,
		sink:      deps.Sink,
		hub:       deps.Hub,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Thresholds returns the effective thresholds with the current blacklist.
func (s *Service) Thresholds() heuristics.Thresholds {
	th := s.opts.Thresholds
	th.Blacklist = s.blacklist.Snapshot()
	return th
}

// Stats returns the activity counters (thread-safe).
func (s *Service) Stats() Stats {
	return Stats{
		Assessments:    s.assessments.Load(),
		Findings:       s.findings.Load(),
		SkippedRecords: s.skippedRecords.Load(),
		StoreErrors:    s.storeErrors.Load(),
		PublishErrors:  s.publishErrors.Load(),
	}
}

// AssessWallet fetches the live balance and recent history of address and
// evaluates it. The wallet creation date is estimated as now minus
// WalletAgeEstimate.
func (s *Service) AssessWallet(ctx context.Context, address string) (models.Assessment, error) {
	if !IsAddress(address) {
		return models.Assessment{}, ErrInvalidAddress
	}
	if s.fetcher == nil {
		return models.Assessment{}, ErrFetcherUnavailable
	}

	balance, err := s.fetcher.Balance(ctx, address)
	if err != nil {
		return models.Assessment{}, fmt.Errorf("%w: balance: %w", ErrUpstream, err)
	}
	raws, err := s.fetcher.Transactions(ctx, address, s.opts.TransactionCount)
	if err != nil {
		return models.Assessment{}, fmt.Errorf("%w: transactions: %w", ErrUpstream, err)
	}

	wallet := models.WalletContext{
		Address:             address,
		CreationDate:        s.now().Add(-s.opts.WalletAgeEstimate),
		CurrentBalanceEther: balance,
	}
	return s.AssessBatch(ctx, wallet, raws)
}

// AssessBatch evaluates caller-supplied records for wallet.
func (s *Service) AssessBatch(ctx context.Context, wallet models.WalletContext, raws []models.RawTransaction) (models.Assessment, error) {
	a, err := heuristics.Evaluate(wallet, s.Thresholds(), raws,
		heuristics.WithClock(s.now),
		heuristics.WithWorkers(s.opts.Workers),
		heuristics.WithSummary(),
	)
	if err != nil {
		return models.Assessment{}, err
	}
	a.ID = s.newID()

	s.assessments.Add(1)
	s.findings.Add(int64(len(a.Findings)))
	s.skippedRecords.Add(int64(a.SkippedRecordCount))

	log := s.log.With().Str("assessment", a.ID).Str("wallet", a.Wallet.Address).Logger()
	log.Info().
		Int("records", a.RecordCount).
		Int("skipped", a.SkippedRecordCount).
		Int("findings", len(a.Findings)).
		Msg("Wallet assessed")

	s.fanOut(ctx, log, a)
	return a, nil
}

// fanOut delivers an assessment to the optional collaborators. Failures are
// logged and counted; the assessment itself stands.
func (s *Service) fanOut(ctx context.Context, log zerolog.Logger, a models.Assessment) {
	if s.store != nil {
		if err := s.store.SaveAssessment(ctx, a); err != nil {
			s.storeErrors.Add(1)
			log.Error().Err(err).Msg("Failed to persist assessment")
		}
	}
	if s.sink != nil {
		if err := s.sink.Emit(ctx, publish.EventAssessment, a.Wallet.Address, a); err != nil {
			s.publishErrors.Add(1)
			log.Error().Err(err).Msg("Failed to publish assessment")
		}
	}
	if s.hub != nil {
		frame, err := json.Marshal(AssessmentAlert{
			ID:           a.ID,
			Wallet:       a.Wallet.Address,
			RecordCount:  a.RecordCount,
			FindingCount: len(a.Findings),
			Counts:       a.Counts,
			EvaluatedAt:  a.EvaluatedAt,
		})
		if err == nil {
			s.hub.Broadcast(frame)
		}
	}
}

// GetAssessment loads a persisted assessment.
func (s *Service) GetAssessment(ctx context.Context, id string) (models.Assessment, error) {
	if s.store == nil {
		return models.Assessment{}, ErrStoreUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return models.Assessment{}, ErrNotFound
	}
	a, err := s.store.GetAssessment(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.Assessment{}, ErrNotFound
	}
	return a, err
}

// History pages through the persisted assessments of address.
func (s *Service) History(ctx context.Context, address string, page, limit int) ([]db.HistoryEntry, int, error) {
	if !IsAddress(address) {
		return nil, 0, ErrInvalidAddress
	}
	if s.store == nil {
		return nil, 0, ErrStoreUnavailable
	}
	return s.store.ListAssessments(ctx, heuristics.NormalizeAddress(address), page, limit)
}

// Blacklist lists the flagged addresses.
func (s *Service) Blacklist() []watchlist.Entry {
	return s.blacklist.List()
}

// AddToBlacklist flags address for all later assessments. It reports
// whether the address was new.
func (s *Service) AddToBlacklist(ctx context.Context, address, label string) (bool, error) {
	if !IsAddress(address) {
		return false, ErrInvalidAddress
	}
	addr := heuristics.NormalizeAddress(address)
	if s.store != nil {
		if err := s.store.SaveBlacklistEntry(ctx, addr, label, "api"); err != nil {
			return false, fmt.Errorf("persist blacklist entry: %w", err)
		}
	}
	added := s.blacklist.Add(addr, label, "api")
	s.emit(ctx, publish.EventBlacklistAdded, addr, watchlist.Entry{Address: addr, Label: label, Source: "api"})
	s.log.Info().Str("address", addr).Bool("new", added).Msg("Blacklist entry added")
	return added, nil
}

// RemoveFromBlacklist unflags address. ErrNotFound means it was not listed.
func (s *Service) RemoveFromBlacklist(ctx context.Context, address string) error {
	if !IsAddress(address) {
		return ErrInvalidAddress
	}
	addr := heuristics.NormalizeAddress(address)
	if !s.blacklist.Contains(addr) {
		return ErrNotFound
	}
	if s.store != nil {
		if err := s.store.DeleteBlacklistEntry(ctx, addr); err != nil {
			return fmt.Errorf("delete blacklist entry: %w", err)
		}
	}
	s.blacklist.Remove(addr)
	s.emit(ctx, publish.EventBlacklistRemoved, addr, watchlist.Entry{Address: addr})
	s.log.Info().Str("address", addr).Msg("Blacklist entry removed")
	return nil
}

func (s *Service) emit(ctx context.Context, typ, key string, v any) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, typ, key, v); err != nil {
		s.publishErrors.Add(1)
		s.log.Error().Err(err).Str("event", typ).Msg("Failed to publish event")
	}
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

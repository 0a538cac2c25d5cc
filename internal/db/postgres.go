package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"github.com/rs/zerolog"
)

// schemaSQL is compiled into the binary at build time so schema init
// works inside a runtime image that does not ship internal/db.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
	maxPage          = math.MaxInt / maxPageLimit
)

type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string, log zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL")
	return &PostgresStore{pool: pool, log: log}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}

	s.log.Info().Msg("Wallet risk schema initialized")
	return nil
}

// SaveAssessment persists a complete assessment. The full document is kept
// as JSONB; the scalar columns serve listing and indexing.
func (s *PostgresStore) SaveAssessment(ctx context.Context, a models.Assessment) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return fmt.Errorf("assessment id: %w", err)
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	counts, err := json.Marshal(a.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	sql := `
		INSERT INTO assessments
			(id, wallet_address, record_count, skipped_count, finding_count, counts, document, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			record_count = EXCLUDED.record_count,
			skipped_count = EXCLUDED.skipped_count,
			finding_count = EXCLUDED.finding_count,
			counts = EXCLUDED.counts,
			document = EXCLUDED.document,
			evaluated_at = EXCLUDED.evaluated_at;
	`
	_, err = s.pool.Exec(ctx, sql, id, a.Wallet.Address, a.RecordCount, a.SkippedRecordCount,
		len(a.Findings), counts, doc, a.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// GetAssessment loads one assessment by ID.
func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (models.Assessment, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.Assessment{}, ErrNotFound
	}
	var doc []byte
	err = s.pool.QueryRow(ctx, `SELECT document FROM assessments WHERE id = $1`, uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Assessment{}, ErrNotFound
	}
	if err != nil {
		return models.Assessment{}, err
	}

	var a models.Assessment
	if err := json.Unmarshal(doc, &a); err != nil {
		return models.Assessment{}, fmt.Errorf("decode assessment %s: %w", id, err)
	}
	return a, nil
}

// HistoryEntry is one row of a wallet's assessment history.
type HistoryEntry struct {
	ID           string        `json:"id"`
	Wallet       string        `json:"wallet"`
	RecordCount  int           `json:"recordCount"`
	SkippedCount int           `json:"skippedRecordCount"`
	FindingCount int           `json:"findingCount"`
	Counts       models.Counts `json:"counts"`
	EvaluatedAt  time.Time     `json:"evaluatedAt"`
}

// ListAssessments pages through a wallet's history, newest first.
// It returns the page and the total number of rows for the wallet.
func (s *PostgresStore) ListAssessments(ctx context.Context, wallet string, page, limit int) ([]HistoryEntry, int, error) {
	limit, offset := pageBounds(page, limit)

	var totalCount int
	countSQL := `SELECT COUNT(*) FROM assessments WHERE wallet_address = $1`
	if err := s.pool.QueryRow(ctx, countSQL, wallet).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT id::text, wallet_address, record_count, skipped_count, finding_count, counts, evaluated_at
		FROM assessments
		WHERE wallet_address = $1
		ORDER BY evaluated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, dataSQL, wallet, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var counts []byte
		if err := rows.Scan(&e.ID, &e.Wallet, &e.RecordCount, &e.SkippedCount, &e.FindingCount, &counts, &e.EvaluatedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(counts, &e.Counts); err != nil {
			return nil, 0, fmt.Errorf("decode counts for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return entries, totalCount, nil
}

// BlacklistRow is a persisted blacklist entry.
type BlacklistRow struct {
	Address string
	Label   string
	Source  string
}

// SaveBlacklistEntry upserts a flagged address.
func (s *PostgresStore) SaveBlacklistEntry(ctx context.Context, address, label, source string) error {
	sql := `
		INSERT INTO blacklisted_addresses (address, label, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			label = EXCLUDED.label,
			source = EXCLUDED.source;
	`
	_, err := s.pool.Exec(ctx, sql, address, label, source)
	return err
}

// DeleteBlacklistEntry removes a flagged address. Missing rows are not an error.
func (s *PostgresStore) DeleteBlacklistEntry(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM blacklisted_addresses WHERE address = $1`, address)
	return err
}

// LoadBlacklist loads persisted entries for warm-starting the registry on boot.
func (s *PostgresStore) LoadBlacklist(ctx context.Context) ([]BlacklistRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, label, source FROM blacklisted_addresses ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]BlacklistRow, 0)
	for rows.Next() {
		var r BlacklistRow
		if err := rows.Scan(&r.Address, &r.Label, &r.Source); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// pageBounds clamps page (1-based) and limit and returns limit and offset.
func pageBounds(page, limit int) (int, int) {
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	if page < 1 {
		page = 1
	}
	// Keep (page-1)*limit from overflowing into a negative offset.
	if page > maxPage {
		page = maxPage
	}
	return limit, (page - 1) * limit
}

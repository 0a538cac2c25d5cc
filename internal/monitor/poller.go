package monitor

import (
	"context"
	"time"

	"github.com/rawblock/wallet-risk-engine/pkg/models"
	"github.com/rs/zerolog"
)

// Assessor runs one live wallet assessment.
type Assessor interface {
	AssessWallet(ctx context.Context, address string) (models.Assessment, error)
}

// Poller re-assesses a fixed set of wallets on an interval. Results flow
// through the assessor (store, sink, stream); the poller itself only
// tracks what changed since the previous round.
type Poller struct {
	assessor Assessor
	wallets  []string
	interval time.Duration
	log      zerolog.Logger

	lastFindings map[string]int
}

// RoundResult describes one wallet within a polling round.
type RoundResult struct {
	Wallet       string
	FindingCount int
	Changed      bool
	Err          error
}

func NewPoller(assessor Assessor, wallets []string, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		assessor:     assessor,
		wallets:      wallets,
		interval:     interval,
		log:          log,
		lastFindings: make(map[string]int),
	}
}

// Run polls until ctx is done. The first round starts immediately.
func (p *Poller) Run(ctx context.Context) {
	if len(p.wallets) == 0 || p.interval <= 0 {
		return
	}
	p.log.Info().Int("wallets", len(p.wallets)).Dur("interval", p.interval).Msg("Starting wallet monitor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Round(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Stopping wallet monitor")
			return
		case <-ticker.C:
			p.Round(ctx)
		}
	}
}

// Round assesses every wallet once, in order. A failing wallet does not
// stop the round.
func (p *Poller) Round(ctx context.Context) []RoundResult {
	results := make([]RoundResult, 0, len(p.wallets))
	for _, wallet := range p.wallets {
		if ctx.Err() != nil {
			break
		}

		a, err := p.assessor.AssessWallet(ctx, wallet)
		if err != nil {
			p.log.Warn().Err(err).Str("wallet", wallet).Msg("Monitored wallet assessment failed")
			results = append(results, RoundResult{Wallet: wallet, Err: err})
			continue
		}

		n := len(a.Findings)
		prev, seen := p.lastFindings[wallet]
		changed := !seen || prev != n
		p.lastFindings[wallet] = n

		if changed {
			p.log.Info().
				Str("wallet", wallet).
				Int("findings", n).
				Int("previous", prev).
				Str("assessment", a.ID).
				Msg("Monitored wallet risk changed")
		}
		results = append(results, RoundResult{Wallet: wallet, FindingCount: n, Changed: changed})
	}
	return results
}

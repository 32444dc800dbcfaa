package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Signaling counters
// ──────────────────────────────────────────────────────────────────────────────

// Stats counts signaling traffic for one negotiator. All fields are atomic,
// so sessions sharing a Stats never contend on a lock.
type Stats struct {
	OffersSent        atomic.Int64 // offers written to the signaling channel
	AnswersSent       atomic.Int64 // answers written to the signaling channel
	CandidatesSent    atomic.Int64 // local candidates trickled to the peer
	CandidatesApplied atomic.Int64 // remote candidates accepted by the engine
	SignalsReceived   atomic.Int64 // inbound frames, including dropped ones
	SignalsDropped    atomic.Int64 // malformed, unrecognized, or unroutable frames
	DeliveryFailures  atomic.Int64 // sends that failed on the signaling channel
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Snapshot is a plain copy of Stats taken at one instant.
type Snapshot struct {
	OffersSent        int64
	AnswersSent       int64
	CandidatesSent    int64
	CandidatesApplied int64
	SignalsReceived   int64
	SignalsDropped    int64
	DeliveryFailures  int64
}

// Snapshot reads every counter. A nil Stats reads as zero.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		OffersSent:        s.OffersSent.Load(),
		AnswersSent:       s.AnswersSent.Load(),
		CandidatesSent:    s.CandidatesSent.Load(),
		CandidatesApplied: s.CandidatesApplied.Load(),
		SignalsReceived:   s.SignalsReceived.Load(),
		SignalsDropped:    s.SignalsDropped.Load(),
		DeliveryFailures:  s.DeliveryFailures.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval, skipping intervals with no traffic. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := s.Snapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(cur.delta(prev)))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// delta returns the per-counter difference cur - prev.
func (cur Snapshot) delta(prev Snapshot) Snapshot {
	return Snapshot{
		OffersSent:        cur.OffersSent - prev.OffersSent,
		AnswersSent:       cur.AnswersSent - prev.AnswersSent,
		CandidatesSent:    cur.CandidatesSent - prev.CandidatesSent,
		CandidatesApplied: cur.CandidatesApplied - prev.CandidatesApplied,
		SignalsReceived:   cur.SignalsReceived - prev.SignalsReceived,
		SignalsDropped:    cur.SignalsDropped - prev.SignalsDropped,
		DeliveryFailures:  cur.DeliveryFailures - prev.DeliveryFailures,
	}
}

// formatStats returns a one-line summary for display in the logger.
func formatStats(d Snapshot) string {
	return fmt.Sprintf("Signals: %3d in (%d dropped) | Out: %d offer %d answer %2d cand | Applied: %2d cand | Send failures: %d",
		d.SignalsReceived,
		d.SignalsDropped,
		d.OffersSent,
		d.AnswersSent,
		d.CandidatesSent,
		d.CandidatesApplied,
		d.DeliveryFailures,
	)
}

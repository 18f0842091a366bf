// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodian-sys/custodian/lib/clock"
	"github.com/custodian-sys/custodian/lib/identity"
)

// Options tunes the engine. Zero values are filled from the stated
// defaults by NewEngine.
type Options struct {
	// QuorumThreshold is the minimum count of non-excluded
	// observations required to finalize a round. Default 3.
	QuorumThreshold int

	// DeviationBound is the maximum distance from the round's running
	// median before a node is flagged. Default 0.25.
	DeviationBound float64

	// RoundDuration is each round's collection deadline. Default 2m.
	RoundDuration time.Duration

	// Retention is how many recent rounds are held; older rounds are
	// evicted oldest-first. Default 32.
	Retention int

	// DeadlineInterval is the period of the deadline-enforcement
	// tick. Default 1s.
	DeadlineInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.QuorumThreshold == 0 {
		o.QuorumThreshold = 3
	}
	if o.DeviationBound == 0 {
		o.DeviationBound = 0.25
	}
	if o.RoundDuration == 0 {
		o.RoundDuration = 2 * time.Minute
	}
	if o.Retention == 0 {
		o.Retention = 32
	}
	if o.DeadlineInterval == 0 {
		o.DeadlineInterval = time.Second
	}
}

// Engine owns all round and observation state. One instance is shared
// by every connection handler; a per-round lock serializes mutation of
// a given round while distinct rounds proceed concurrently.
type Engine struct {
	opts     Options
	clk      clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
	archiver *Archiver

	// partitioned makes quorum completion finalize rounds as
	// PartiallyComplete instead of Complete. The daemon flips it from
	// peer-reachability information; the engine itself has no view of
	// the network.
	partitioned atomic.Bool

	// mu guards the round table only. Round contents are guarded by
	// each round's own lock; mu is never held while a round lock is.
	mu     sync.RWMutex
	rounds map[uint64]*round
	ids    []uint64 // retained round ids, ascending
	maxID  uint64   // highest round id ever opened
	floor  uint64   // smallest admissible round id
}

// NewEngine creates an engine. The archiver may be nil to disable
// eviction archiving.
func NewEngine(opts Options, clk clock.Clock, logger *slog.Logger, metrics *Metrics, archiver *Archiver) *Engine {
	opts.applyDefaults()
	return &Engine{
		opts:     opts,
		clk:      clk,
		logger:   logger,
		metrics:  metrics,
		archiver: archiver,
		rounds:   make(map[uint64]*round),
	}
}

// SetPartitioned switches partition mode. While set, rounds that reach
// quorum finalize as PartiallyComplete, pending reconciliation.
func (e *Engine) SetPartitioned(partitioned bool) {
	e.partitioned.Store(partitioned)
}

// CurrentRound returns the highest round id opened so far. Callers
// receiving StaleRound use this to find where to resubmit.
func (e *Engine) CurrentRound() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxID
}

// Submit records an observation. Idempotent per (node, round): a
// resubmission overwrites the prior entry with a fresh arrival
// timestamp. The round is created on its first observation. After
// recording, quorum is re-evaluated and, when a candidate quorum is
// reached, Byzantine detection and score aggregation run before
// Submit returns.
func (e *Engine) Submit(node identity.NodeID, obs Observation) (RoundStatus, error) {
	r, err := e.roundFor(obs.Round, true)
	if err != nil {
		return RoundStatus{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Terminal() {
		return RoundStatus{}, NewError(KindRoundClosed, "round %d is %s", r.id, r.state)
	}

	obs.Node = node
	obs.SubmittedAt = e.clk.Now()

	// A resubmission contradicting the node's own prior value beyond
	// the bound marks the node; the detector turns the mark into an
	// exclusion when the round evaluates.
	if prior, resubmission := r.observations[node]; resubmission {
		if math.Abs(prior.TrustScore-obs.TrustScore) > e.opts.DeviationBound {
			r.contradicted[node] = true
		}
	}

	r.observations[node] = obs
	if r.state == StatePending {
		r.state = StateCollecting
	}

	e.evaluate(r)

	if e.logger != nil {
		e.logger.Debug("observation recorded",
			"round", r.id,
			"node", node,
			"state", r.state,
			"observed", len(r.observations),
		)
	}
	return r.status(), nil
}

// evaluate drives the round state machine after a mutation: when the
// effective population reaches quorum the round moves to Evaluating,
// the Byzantine detector runs, quorum is re-checked against the
// reduced population, and the score is recorded. Caller holds the
// round's lock.
func (e *Engine) evaluate(r *round) {
	if r.state != StateCollecting || r.effectivePopulation() < r.quorum {
		return
	}

	r.state = StateEvaluating

	if newlyExcluded := detect(r, e.opts.DeviationBound); newlyExcluded > 0 {
		if e.metrics != nil {
			e.metrics.NodesExcluded.Add(uint64(newlyExcluded))
		}
		if e.logger != nil {
			e.logger.Info("nodes excluded from round",
				"round", r.id,
				"newly_excluded", newlyExcluded,
				"excluded", r.excludedNodes(),
			)
		}
	}

	// Exclusions shrink the effective population; quorum must hold
	// against the reduced count.
	if r.effectivePopulation() < r.quorum {
		r.state = StateCollecting
		return
	}

	score, ok := medianScore(r)
	if !ok {
		r.state = StateCollecting
		return
	}
	r.score = &score
	r.completedAt = e.clk.Now()
	if e.partitioned.Load() {
		r.state = StatePartiallyComplete
	} else {
		r.state = StateComplete
	}

	if e.logger != nil {
		e.logger.Info("round finalized",
			"round", r.id,
			"state", r.state,
			"score", score,
			"observed", len(r.observations),
			"excluded", len(r.excluded),
			"elapsed", r.completedAt.Sub(r.start),
		)
	}
}

// OpenRound creates a round ahead of its first observation (the
// scheduler-tick path), arming its deadline. The id must exceed every
// previously opened round id.
func (e *Engine) OpenRound(id uint64) (RoundStatus, error) {
	e.mu.Lock()

	if id <= e.maxID && e.maxID != 0 {
		e.mu.Unlock()
		return RoundStatus{}, fmt.Errorf("round ids must increase: %d not above %d", id, e.maxID)
	}
	r, evicted := e.createLocked(id)
	e.mu.Unlock()
	e.archiveEvicted(evicted)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status(), nil
}

// Status returns a consistent snapshot of a round, taken under the
// same per-round lock as writes.
func (e *Engine) Status(id uint64) (RoundStatus, error) {
	r, err := e.roundFor(id, false)
	if err != nil {
		return RoundStatus{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status(), nil
}

// Snapshot returns a full immutable copy of a round, including any
// superseded partition fragments.
func (e *Engine) Snapshot(id uint64) (RoundSnapshot, error) {
	r, err := e.roundFor(id, false)
	if err != nil {
		return RoundSnapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

// RunDeadlines enforces round deadlines on a periodic tick until ctx
// is cancelled. The tick is independent of connection activity: it
// never blocks on, nor is blocked by, socket I/O.
func (e *Engine) RunDeadlines(ctx context.Context) {
	ticker := e.clk.NewTicker(e.opts.DeadlineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.expireDeadlines(now)
		}
	}
}

// expireDeadlines moves Pending/Collecting rounds past their deadline
// to TimedOut. Terminal; partial data is preserved for audit.
func (e *Engine) expireDeadlines(now time.Time) {
	for _, r := range e.retainedRounds() {
		r.mu.Lock()
		if (r.state == StatePending || r.state == StateCollecting) && now.After(r.deadline) {
			r.state = StateTimedOut
			if e.logger != nil {
				e.logger.Warn("round timed out without quorum",
					"round", r.id,
					"observed", len(r.observations),
					"quorum", r.quorum,
				)
			}
		}
		r.mu.Unlock()
	}
}

// retainedRounds copies the current round pointers so deadline
// enforcement iterates without holding the table lock.
func (e *Engine) retainedRounds() []*round {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rounds := make([]*round, 0, len(e.rounds))
	for _, r := range e.rounds {
		rounds = append(rounds, r)
	}
	return rounds
}

// roundFor resolves a round id, optionally creating the round. Ids
// below the retained window are stale; ids at or below the highest
// opened id that are no longer present were evicted and are equally
// stale.
func (e *Engine) roundFor(id uint64, create bool) (*round, error) {
	e.mu.Lock()

	if r, ok := e.rounds[id]; ok {
		e.mu.Unlock()
		return r, nil
	}
	if id < e.floor || (e.maxID != 0 && id <= e.maxID) {
		maxID := e.maxID
		e.mu.Unlock()
		return nil, NewError(KindStaleRound, "round %d is outside the retained window (current round %d)", id, maxID)
	}
	if !create {
		e.mu.Unlock()
		return nil, fmt.Errorf("round %d is not open", id)
	}
	r, evicted := e.createLocked(id)
	e.mu.Unlock()
	e.archiveEvicted(evicted)
	return r, nil
}

// createLocked opens a round and detaches rounds beyond retention,
// oldest first. Caller holds the table lock and has checked that id
// exceeds maxID; the returned evicted rounds are archived by the
// caller after the table lock is released.
func (e *Engine) createLocked(id uint64) (*round, []*round) {
	now := e.clk.Now()
	r := newRound(id, e.opts.QuorumThreshold, now, now.Add(e.opts.RoundDuration))
	e.rounds[id] = r
	e.ids = append(e.ids, id)
	e.maxID = id
	if e.floor == 0 {
		e.floor = id
	}

	var evicted []*round
	for len(e.ids) > e.opts.Retention {
		evictID := e.ids[0]
		e.ids = e.ids[1:]
		evicted = append(evicted, e.rounds[evictID])
		delete(e.rounds, evictID)
		e.floor = e.ids[0]
	}
	return r, evicted
}

// archiveEvicted snapshots detached rounds into the audit archive.
func (e *Engine) archiveEvicted(evicted []*round) {
	for _, r := range evicted {
		r.mu.Lock()
		snap := r.snapshot()
		r.mu.Unlock()

		if e.archiver != nil {
			if err := e.archiver.Write(snap); err != nil && e.logger != nil {
				e.logger.Error("archiving evicted round failed",
					"round", snap.Round,
					"error", err,
				)
			}
		}
		if e.logger != nil {
			e.logger.Debug("round evicted", "round", snap.Round)
		}
	}
}

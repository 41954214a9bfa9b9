package provider

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/models"
)

// BreakerState of one provider in the registry.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type entry struct {
	provider Provider

	state         BreakerState
	consecutive   int
	openedAt      time.Time
	probeInFlight bool

	tokensIn  int64
	tokensOut int64
	cost      float64
}

// Status is a read-only snapshot of one provider's registry entry.
type Status struct {
	Name      string       `json:"name"`
	State     BreakerState `json:"state"`
	TokensIn  int64        `json:"tokens_in"`
	TokensOut int64        `json:"tokens_out"`
	Cost      float64      `json:"cost"`
}

// Registry holds the ordered provider list with per-provider circuit
// breakers and usage counters. Counters and breaker state live in
// process; writes are replicated best-effort to Redis for cross-instance
// visibility.
type Registry struct {
	mu        sync.Mutex
	order     []*entry
	threshold int
	cooldown  time.Duration

	rdb    *redis.Client
	logger *zap.Logger
}

func NewRegistry(providers []Provider, threshold int, cooldown time.Duration, rdb *redis.Client, logger *zap.Logger) *Registry {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	order := make([]*entry, 0, len(providers))
	for _, p := range providers {
		order = append(order, &entry{provider: p, state: BreakerClosed})
	}
	return &Registry{
		order:     order,
		threshold: threshold,
		cooldown:  cooldown,
		rdb:       rdb,
		logger:    logger,
	}
}

// Candidates returns, in configured order, every provider that supports
// the kind and whose breaker admits traffic. An open breaker past its
// cool-down transitions to half_open and admits a single probe.
func (r *Registry) Candidates(kind models.TransformationKind) []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Provider, 0, len(r.order))
	for _, e := range r.order {
		if !e.provider.Supports(kind) {
			continue
		}
		switch e.state {
		case BreakerClosed:
			out = append(out, e.provider)
		case BreakerOpen:
			if time.Since(e.openedAt) >= r.cooldown {
				e.state = BreakerHalfOpen
				e.probeInFlight = true
				out = append(out, e.provider)
			}
		case BreakerHalfOpen:
			if !e.probeInFlight {
				e.probeInFlight = true
				out = append(out, e.provider)
			}
		}
	}
	return out
}

// RecordSuccess closes the breaker and accumulates usage counters.
func (r *Registry) RecordSuccess(name string, resp *Response) {
	r.mu.Lock()
	e := r.find(name)
	if e == nil {
		r.mu.Unlock()
		return
	}
	e.state = BreakerClosed
	e.consecutive = 0
	e.probeInFlight = false
	e.tokensIn += int64(resp.TokensIn)
	e.tokensOut += int64(resp.TokensOut)
	e.cost += resp.Cost
	snapshot := r.statusLocked(e)
	r.mu.Unlock()

	r.replicate(snapshot)
}

// RecordFailure steps the breaker: K consecutive failures open it, a
// failed half-open probe reopens it immediately.
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	e := r.find(name)
	if e == nil {
		r.mu.Unlock()
		return
	}
	e.consecutive++
	e.probeInFlight = false
	if e.state == BreakerHalfOpen || e.consecutive >= r.threshold {
		if e.state != BreakerOpen {
			r.logger.Warn("provider breaker opened",
				zap.String("provider", name),
				zap.Int("consecutive_failures", e.consecutive),
			)
		}
		e.state = BreakerOpen
		e.openedAt = time.Now()
	}
	snapshot := r.statusLocked(e)
	r.mu.Unlock()

	r.replicate(snapshot)
}

// Snapshot reports every provider's current status in order.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, r.statusLocked(e))
	}
	return out
}

func (r *Registry) find(name string) *entry {
	for _, e := range r.order {
		if e.provider.Name() == name {
			return e
		}
	}
	return nil
}

func (r *Registry) statusLocked(e *entry) Status {
	return Status{
		Name:      e.provider.Name(),
		State:     e.state,
		TokensIn:  e.tokensIn,
		TokensOut: e.tokensOut,
		Cost:      e.cost,
	}
}

// replicate pushes a status snapshot to Redis. Best-effort: reads are
// eventually consistent and a lost write only under-counts.
func (r *Registry) replicate(s Status) {
	if r.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := r.rdb.HSet(ctx, "providers:"+s.Name, map[string]any{
		"state":      string(s.State),
		"tokens_in":  s.TokensIn,
		"tokens_out": s.TokensOut,
		"cost":       s.Cost,
	}).Err()
	if err != nil {
		r.logger.Warn("provider state replication failed",
			zap.String("provider", s.Name), zap.Error(err))
	}
}

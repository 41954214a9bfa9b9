package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/models"
)

type staticProvider struct {
	name  string
	kinds map[models.TransformationKind]bool
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Supports(kind models.TransformationKind) bool {
	if p.kinds == nil {
		return true
	}
	return p.kinds[kind]
}

func (p *staticProvider) Invoke(context.Context, Request) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func names(providers []Provider) []string {
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.Name())
	}
	return out
}

func TestCandidatesRespectOrderAndCapability(t *testing.T) {
	r := NewRegistry([]Provider{
		&staticProvider{name: "a", kinds: map[models.TransformationKind]bool{models.KindSummary: true}},
		&staticProvider{name: "b"},
	}, 3, time.Minute, nil, zap.NewNop())

	assert.Equal(t, []string{"a", "b"}, names(r.Candidates(models.KindSummary)))
	assert.Equal(t, []string{"b"}, names(r.Candidates(models.KindBlogPost)))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := NewRegistry([]Provider{
		&staticProvider{name: "a"},
		&staticProvider{name: "b"},
	}, 2, time.Minute, nil, zap.NewNop())

	r.RecordFailure("a")
	assert.Equal(t, []string{"a", "b"}, names(r.Candidates(models.KindSummary)),
		"one failure below threshold keeps the breaker closed")

	r.RecordFailure("a")
	assert.Equal(t, []string{"b"}, names(r.Candidates(models.KindSummary)),
		"threshold reached opens the breaker")
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	r := NewRegistry([]Provider{&staticProvider{name: "a"}}, 2, time.Minute, nil, zap.NewNop())

	r.RecordFailure("a")
	r.RecordSuccess("a", &Response{TokensIn: 5, TokensOut: 7, Cost: 0.01})
	r.RecordFailure("a")

	assert.Equal(t, []string{"a"}, names(r.Candidates(models.KindSummary)),
		"success resets the consecutive-failure count")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	r := NewRegistry([]Provider{&staticProvider{name: "a"}}, 1, 10*time.Millisecond, nil, zap.NewNop())

	r.RecordFailure("a")
	assert.Empty(t, r.Candidates(models.KindSummary), "open breaker admits nothing")

	time.Sleep(20 * time.Millisecond)

	// Cool-down elapsed: exactly one probe is admitted.
	assert.Equal(t, []string{"a"}, names(r.Candidates(models.KindSummary)))
	assert.Empty(t, r.Candidates(models.KindSummary), "second probe blocked while first is in flight")

	// A failed probe reopens immediately.
	r.RecordFailure("a")
	assert.Empty(t, r.Candidates(models.KindSummary))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []string{"a"}, names(r.Candidates(models.KindSummary)))

	// A successful probe closes the breaker for good.
	r.RecordSuccess("a", &Response{})
	assert.Equal(t, []string{"a"}, names(r.Candidates(models.KindSummary)))
	assert.Equal(t, []string{"a"}, names(r.Candidates(models.KindSummary)))
}

func TestCountersAccumulate(t *testing.T) {
	r := NewRegistry([]Provider{&staticProvider{name: "a"}}, 3, time.Minute, nil, zap.NewNop())

	r.RecordSuccess("a", &Response{TokensIn: 100, TokensOut: 50, Cost: 0.02})
	r.RecordSuccess("a", &Response{TokensIn: 10, TokensOut: 5, Cost: 0.001})

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(110), snapshot[0].TokensIn)
	assert.Equal(t, int64(55), snapshot[0].TokensOut)
	assert.InDelta(t, 0.021, snapshot[0].Cost, 1e-9)
	assert.Equal(t, BreakerClosed, snapshot[0].State)
}

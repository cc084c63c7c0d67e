package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/routing"
	"github.com/stretchr/testify/assert"
)

func TestUnknownProviderReportsUnknown(t *testing.T) {
	tr := New(time.Minute, logging.Nop())
	h := tr.StatusOf("nobody")
	assert.Equal(t, routing.HealthUnknown, h.Status)
}

func TestRecordFailureDegradesThenUnhealthy(t *testing.T) {
	tr := New(time.Minute, logging.Nop())
	tr.RecordFailure("p", errors.New("boom"))
	assert.Equal(t, routing.HealthDegraded, tr.StatusOf("p").Status)

	tr.RecordFailure("p", errors.New("boom"))
	assert.Equal(t, routing.HealthDegraded, tr.StatusOf("p").Status)

	tr.RecordFailure("p", errors.New("boom"))
	h := tr.StatusOf("p")
	assert.Equal(t, routing.HealthUnhealthy, h.Status)
	assert.Equal(t, 3, h.ConsecutiveErrors)
}

func TestRecordSuccessResetsFromAnyState(t *testing.T) {
	tr := New(time.Minute, logging.Nop())
	for i := 0; i < 5; i++ {
		tr.RecordFailure("p", errors.New("boom"))
	}
	assert.Equal(t, routing.HealthUnhealthy, tr.StatusOf("p").Status)

	tr.RecordSuccess("p")
	h := tr.StatusOf("p")
	assert.Equal(t, routing.HealthHealthy, h.Status)
	assert.Zero(t, h.ConsecutiveErrors)
}

type fakeProber struct {
	name string
	err  error
	hits int32
}

func (f *fakeProber) Name() string { return f.name }
func (f *fakeProber) Probe(ctx context.Context) error {
	atomic.AddInt32(&f.hits, 1)
	return f.err
}

func TestRunProbesRecordsSuccessAndFailure(t *testing.T) {
	good := &fakeProber{name: "good"}
	bad := &fakeProber{name: "bad", err: errors.New("down")}
	tr := New(time.Minute, logging.Nop(), good, bad)

	tr.RunProbes(context.Background())

	assert.Equal(t, routing.HealthHealthy, tr.StatusOf("good").Status)
	assert.Equal(t, routing.HealthDegraded, tr.StatusOf("bad").Status)
	assert.EqualValues(t, 1, good.hits)
	assert.EqualValues(t, 1, bad.hits)
}

func TestRunProbesNeverBlocksOnOneSlowProber(t *testing.T) {
	slow := proberFunc{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	fast := &fakeProber{name: "fast"}
	tr := New(time.Minute, logging.Nop(), slow, fast)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		tr.RunProbes(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunProbes did not return after context deadline")
	}
	assert.Equal(t, routing.HealthHealthy, tr.StatusOf("fast").Status)
}

type proberFunc struct {
	name string
	fn   func(context.Context) error
}

func (p proberFunc) Name() string                      { return p.name }
func (p proberFunc) Probe(ctx context.Context) error   { return p.fn(ctx) }

func TestSnapshotReturnsCopy(t *testing.T) {
	tr := New(time.Minute, logging.Nop())
	tr.RecordSuccess("p")
	snap := tr.Snapshot()
	snap["p"] = routing.Health{Status: routing.HealthUnhealthy}
	assert.Equal(t, routing.HealthHealthy, tr.StatusOf("p").Status, "snapshot must not alias internal state")
}

func TestStartAndCloseStopsProbeLoop(t *testing.T) {
	p := &fakeProber{name: "p"}
	tr := New(10*time.Millisecond, logging.Nop(), p)
	tr.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	tr.Close()

	hitsAtClose := atomic.LoadInt32(&p.hits)
	assert.Greater(t, hitsAtClose, int32(0))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, hitsAtClose, atomic.LoadInt32(&p.hits), "no more probes after Close")
}

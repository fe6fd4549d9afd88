package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStakingdMetrics(t *testing.T) {
	m := Stakingd()
	m.ObserveOperation("stake", "ok", time.Millisecond)
	m.ObserveOperation("stake", "ok", time.Millisecond)
	m.ObserveOperation("claim", "timing", time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")); got != 2 {
		t.Fatalf("expected 2 stake operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("claim", "timing")); got != 1 {
		t.Fatalf("expected 1 failed claim, got %v", got)
	}

	m.SetStaked(3)
	m.AddStaked(-1)
	if got := testutil.ToFloat64(m.stakedTokens); got != 2 {
		t.Fatalf("expected 2 staked tokens, got %v", got)
	}
	m.SetPause(true)
	if got := testutil.ToFloat64(m.pauseEngaged); got != 1 {
		t.Fatalf("pause gauge not set")
	}
	before := testutil.ToFloat64(m.rewardsPaid)
	m.RecordRewards(big.NewInt(120))
	m.RecordRewards(big.NewInt(-5))
	if got := testutil.ToFloat64(m.rewardsPaid) - before; got != 120 {
		t.Fatalf("expected 120 rewards, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *StakingdMetrics
	m.ObserveOperation("stake", "ok", 0)
	m.SetPause(true)
	var e *eventMetrics
	e.RecordEvent("x")
}

func TestBigToFloat(t *testing.T) {
	if bigToFloat(nil) != 0 {
		t.Fatalf("nil should map to zero")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	if got := bigToFloat(huge); got != 0 {
		t.Fatalf("overflowing value should map to zero, got %v", got)
	}
}

func TestEventMetrics(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.failures)
	m.RecordFailure()
	if got := testutil.ToFloat64(m.failures) - before; got != 1 {
		t.Fatalf("expected one journal failure, got %v", got)
	}
	m.RecordEvent(" ")
	if got := testutil.ToFloat64(m.journaled.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("blank event type not recorded as unknown")
	}
}

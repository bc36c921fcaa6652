package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckAllHealthy(t *testing.T) {
	c := New(Config{
		Probes: []Probe{
			{Name: "ledger", Check: func(context.Context) error { return nil }},
			{Name: "identity", Check: func(context.Context) error { return nil }},
		},
	})

	overall := c.Check(context.Background())
	if overall.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", overall.Status)
	}
	if len(overall.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(overall.Components))
	}
}

func TestCheckStoreFailureIsUnhealthy(t *testing.T) {
	c := New(Config{
		Probes: []Probe{
			{Name: "ledger", Check: func(context.Context) error { return errors.New("locked") }},
		},
	})

	overall := c.Check(context.Background())
	if overall.Status != StatusUnhealthy {
		t.Fatalf("store failure should be critical, got %s", overall.Status)
	}
}

func TestCheckSlowStoreIsDegraded(t *testing.T) {
	c := New(Config{
		MaxStoreLatency: time.Nanosecond,
		Probes: []Probe{
			{Name: "ledger", Check: func(context.Context) error {
				time.Sleep(time.Millisecond)
				return nil
			}},
		},
	})

	overall := c.Check(context.Background())
	if overall.Status != StatusDegraded {
		t.Fatalf("slow store should degrade, got %s", overall.Status)
	}
}

func TestLastStatusBeforeFirstCheck(t *testing.T) {
	c := New(Config{})
	if got := c.LastStatus().Status; got != StatusHealthy {
		t.Fatalf("expected healthy default, got %s", got)
	}
}

package embedcap

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestFakeProviderDeterministic(t *testing.T) {
	p := NewFakeProvider("fake-embed", 16)
	a, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Vector) != 16 {
		t.Fatalf("expected dim 16, got %d", len(a.Vector))
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatalf("expected deterministic vector at %d: %v != %v", i, a.Vector[i], b.Vector[i])
		}
	}
}

func TestFakeProviderUnitNorm(t *testing.T) {
	p := NewFakeProvider("fake-embed", 32)
	r, err := p.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	var sumSq float64
	for _, v := range r.Vector {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-4 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
}

func TestFakeProviderDiffersByText(t *testing.T) {
	p := NewFakeProvider("fake-embed", 16)
	a, _ := p.Embed(context.Background(), "alpha")
	b, _ := p.Embed(context.Background(), "beta")
	same := true
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different text to produce different vectors")
	}
}

func TestWithRetryRetriesTransient(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &TransientError{Cause: errors.New("boom")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryPermanentErrorStopsImmediately(t *testing.T) {
	attempts := 0
	permanent := errors.New("not found")
	err := WithRetry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error to propagate, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for permanent error, got %d", attempts)
	}
}

package retry

import (
	"testing"
	"time"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != BackoffExponential {
		t.Fatalf("expected exponential default mode got %s", p.Mode)
	}
	if p.Initial != 5*time.Second {
		t.Fatalf("expected initial 5s got %v", p.Initial)
	}
	if p.Max != 10*time.Minute {
		t.Fatalf("expected max 10m got %v", p.Max)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("expected max retries 5 got %d", p.MaxRetries)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(BackoffFixed, 5*time.Second, 2*time.Second, 3)
	// initial > max -> clamped
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Max != 2*time.Second {
		t.Fatalf("expected max 2s got %v", p.Max)
	}
	if p.Mode != BackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxRetries != 3 {
		t.Fatalf("expected maxRetries 3 got %d", p.MaxRetries)
	}
}

// TestNewPolicyUnknownModeKeepsDefault covers the unknown-mode fallback.
func TestNewPolicyUnknownModeKeepsDefault(t *testing.T) {
	p := NewPolicy("quadratic", 0, 0, -1)
	if p.Mode != BackoffExponential {
		t.Fatalf("expected default mode for unknown input got %s", p.Mode)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("negative max retries must keep default, got %d", p.MaxRetries)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(BackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed attempt %d expected 100ms got %v", i, d)
		}
	}

	linear := NewPolicy(BackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	linCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range linCases {
		if got := linear.Delay(c.attempt); got != c.want {
			t.Fatalf("linear attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}

	exp := NewPolicy(BackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {4, 160 * time.Millisecond}}
	for _, c := range expCases {
		if got := exp.Delay(c.attempt); got != c.want {
			t.Fatalf("exponential attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
}

// TestDelayGrowsMonotonically guards the backoff invariant relied on by the relay.
func TestDelayGrowsMonotonically(t *testing.T) {
	p := NewPolicy(BackoffExponential, time.Second, time.Hour, 10)
	prev := time.Duration(0)
	for i := 1; i <= 8; i++ {
		d := p.Delay(i)
		if d <= prev {
			t.Fatalf("delay at attempt %d (%v) not greater than previous (%v)", i, d, prev)
		}
		prev = d
	}
}

// TestExhausted verifies the retry budget boundary.
func TestExhausted(t *testing.T) {
	p := NewPolicy(BackoffExponential, time.Second, time.Minute, 5)
	if p.Exhausted(4) {
		t.Fatal("4 retries should not exhaust a budget of 5")
	}
	if !p.Exhausted(5) {
		t.Fatal("5 retries should exhaust a budget of 5")
	}
}

// TestDelayZeroAttempt ensures non-positive attempts yield no delay.
func TestDelayZeroAttempt(t *testing.T) {
	p := DefaultPolicy()
	if d := p.Delay(0); d != 0 {
		t.Fatalf("expected 0 delay got %v", d)
	}
}

// TestValidate exercises invariant checks.
func TestValidate(t *testing.T) {
	good := DefaultPolicy()
	if err := good.Validate(); err != nil {
		t.Fatalf("default policy should validate: %v", err)
	}
	bad := Policy{Mode: BackoffFixed, Initial: 0, Max: time.Second, MaxRetries: 1}
	if err := bad.Validate(); err == nil {
		t.Fatal("zero initial must fail validation")
	}
	bad = Policy{Mode: BackoffFixed, Initial: time.Second, Max: 0, MaxRetries: 1}
	if err := bad.Validate(); err == nil {
		t.Fatal("zero max must fail validation")
	}
	bad = Policy{Mode: BackoffFixed, Initial: time.Second, Max: time.Second, MaxRetries: -1}
	if err := bad.Validate(); err == nil {
		t.Fatal("negative retries must fail validation")
	}
}

package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	// InitialBackoff is the initial reconnection delay.
	InitialBackoff = 1 * time.Second

	// MaxBackoff is the maximum reconnection delay.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of base delay.
	JitterFactor = 0.25
)

// BackoffConfig customizes the reconnection policy.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the maximum random addition as a fraction of the base
	// delay. Zero means JitterFactor; a negative value disables jitter.
	Jitter float64

	// MaxAttempts limits consecutive failed attempts before giving up.
	// Zero means unlimited.
	MaxAttempts int

	// Deadline limits the total wall-clock time spent retrying since
	// the first failure. Zero means no deadline.
	Deadline time.Duration
}

// Backoff calculates exponential backoff delays with jitter and decides
// when to stop retrying. Jitter is additive, so the base delay is
// non-decreasing across consecutive failures up to the maximum.
type Backoff struct {
	mu sync.Mutex

	// Current backoff delay (before jitter)
	current time.Duration

	// Configuration
	initial     time.Duration
	max         time.Duration
	multiplier  float64
	jitter      float64
	maxAttempts int
	deadline    time.Duration

	// Attempt counter since last reset
	attempts int

	// Start of the current failure streak
	firstFailure time.Time

	// Random source for jitter
	rng *rand.Rand

	// now is replaceable for tests.
	now func() time.Time
}

// NewBackoff creates a backoff calculator with default settings and no
// attempt or deadline limit.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	// Zero means "use the default"; disabling jitter takes a negative
	// value.
	if cfg.Jitter == 0 {
		cfg.Jitter = JitterFactor
	} else if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:     cfg.Initial,
		initial:     cfg.Initial,
		max:         cfg.Max,
		multiplier:  cfg.Multiplier,
		jitter:      cfg.Jitter,
		maxAttempts: cfg.MaxAttempts,
		deadline:    cfg.Deadline,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// Next records a failed attempt and returns the delay before the next
// retry. The second return value is false when the policy gives up:
// the attempt count would exceed MaxAttempts or the failure streak has
// outlived Deadline.
func (b *Backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.attempts == 0 {
		b.firstFailure = now
	}

	if b.maxAttempts > 0 && b.attempts >= b.maxAttempts {
		return 0, false
	}
	if b.deadline > 0 && now.Sub(b.firstFailure) > b.deadline {
		return 0, false
	}
	b.attempts++

	delay := b.addJitter(b.current)

	// Advance to next backoff value
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay, true
}

// Peek returns the current backoff delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addJitter(b.current)
}

// Reset resets the backoff to initial values.
// Call this after a connection reaches Ready.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
	b.firstFailure = time.Time{}
}

// Attempts returns the number of failed attempts since last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// addJitter adds random jitter to a delay.
func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	jitterAmount := time.Duration(float64(d) * b.jitter * b.rng.Float64())
	return d + jitterAmount
}

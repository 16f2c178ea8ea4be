package client

import (
	"math"
	"math/rand"
	"time"

	"github.com/vovakirdan/emojichat/internal/config"
)

// Backoff yields exponentially growing reconnect delays between Min and Max.
// A Backoff is not safe for concurrent use.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	// Jitter spreads each delay uniformly by +/- Jitter*delay.
	Jitter float64

	attempt int
	random  func() float64
}

// NewBackoff builds a policy from configuration, filling in sane values for unset fields.
func NewBackoff(cfg config.BackoffConfig) *Backoff {
	b := &Backoff{
		Min:    cfg.Min,
		Max:    cfg.Max,
		Factor: cfg.Factor,
		Jitter: cfg.Jitter,
		random: rand.Float64,
	}
	if b.Min <= 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if b.Factor < 1 {
		b.Factor = 2
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Jitter > 1 {
		b.Jitter = 1
	}
	return b
}

// Next returns the delay before the next attempt and advances the policy.
func (b *Backoff) Next() time.Duration {
	d := float64(b.Min) * math.Pow(b.Factor, float64(b.attempt))
	if d >= float64(b.Max) || math.IsInf(d, 0) {
		d = float64(b.Max)
	} else {
		b.attempt++
	}

	if b.Jitter > 0 {
		random := b.random
		if random == nil {
			random = rand.Float64
		}
		delta := d * b.Jitter
		d = d - delta + 2*delta*random()
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

// Reset starts the sequence over; call it after a successful connect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt reports how many times the delay has grown since the last reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

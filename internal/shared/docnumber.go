package shared

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MaxNumberAttempts bounds collision retries when allocating document numbers.
const MaxNumberAttempts = 5

// ErrNumberExhausted is returned when every attempt collided with an existing number.
var ErrNumberExhausted = &Error{Kind: KindConflict, Message: "could not allocate a unique order number"}

// NumberGenerator issues PREFIX-YYYYMMDD-NNNNNNNN document numbers. The sequence is
// seeded from the milliseconds elapsed since midnight and only moves forward within a day.
type NumberGenerator struct {
	prefix string
	now    func() time.Time

	mu  sync.Mutex
	day string
	seq int64
}

// NewNumberGenerator returns a generator for prefix (for example "SO").
func NewNumberGenerator(prefix string) *NumberGenerator {
	return &NumberGenerator{prefix: prefix, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (g *NumberGenerator) WithClock(now func() time.Time) *NumberGenerator {
	g.now = now
	return g
}

// Next returns the next number.
func (g *NumberGenerator) Next() string {
	now := g.now().UTC()
	day := now.Format("20060102")

	g.mu.Lock()
	defer g.mu.Unlock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	seed := now.Sub(midnight).Milliseconds()
	if day != g.day {
		g.day = day
		g.seq = seed
	} else if seed > g.seq {
		g.seq = seed
	} else {
		g.seq++
	}
	return fmt.Sprintf("%s-%s-%08d", g.prefix, day, g.seq)
}

// Allocate returns a number for which exists reports false, trying at most MaxNumberAttempts times.
func (g *NumberGenerator) Allocate(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxNumberAttempts; attempt++ {
		number := g.Next()
		taken, err := exists(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", ErrNumberExhausted
}

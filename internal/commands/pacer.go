package commands

import (
	"context"
	"math/rand/v2"
	"time"
	"unicode/utf8"
)

// Reply pacing bounds.
const (
	perRuneDelay   = 100 * time.Millisecond
	minTypingDelay = 1 * time.Second
	maxTypingDelay = 5 * time.Second
	jitterLow      = 0.8
	jitterHigh     = 1.3
	gapLow         = 300 * time.Millisecond
	gapHigh        = 800 * time.Millisecond
)

// Pacer spaces reply bubbles the way a person types them.
type Pacer struct {
	// Float returns a value in [0, 1). Defaults to math/rand/v2.
	Float func() float64
	// Sleep waits d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// TypingDelay is clamp(runes*0.1s, 1s, 5s) scaled by a uniform [0.8, 1.3] jitter.
func (p Pacer) TypingDelay(text string) time.Duration {
	base := time.Duration(utf8.RuneCountInString(text)) * perRuneDelay
	base = min(max(base, minTypingDelay), maxTypingDelay)
	jitter := jitterLow + (jitterHigh-jitterLow)*p.float()
	return time.Duration(float64(base) * jitter)
}

// Gap is the uniform [0.3s, 0.8s] pause after a bubble is sent.
func (p Pacer) Gap() time.Duration {
	return gapLow + time.Duration(float64(gapHigh-gapLow)*p.float())
}

// Wait sleeps d unless ctx ends first.
func (p Pacer) Wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p Pacer) float() float64 {
	if p.Float != nil {
		return p.Float()
	}
	return rand.Float64()
}

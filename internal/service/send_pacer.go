package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// SendInterval is the minimum spacing between two treasury transfers. It
// keeps a run with many positions under the RPC provider's request limit.
const SendInterval = 15 * time.Second

// SendPacer spaces out chain submissions. The first call passes immediately;
// each later call waits until SendInterval has elapsed since the previous one.
type SendPacer struct {
	limiter *rate.Limiter
	clock   Clock
}

// NewSendPacer creates a pacer allowing one send per interval.
func NewSendPacer(interval time.Duration, clock Clock) *SendPacer {
	if interval <= 0 {
		interval = SendInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SendPacer{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		clock:   clock,
	}
}

// Wait blocks until the next send may go out or ctx is done.
func (p *SendPacer) Wait(ctx context.Context) error {
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		r.CancelAt(p.clock.Now())
		return ctx.Err()
	case <-p.clock.After(delay):
		return nil
	}
}

package eventlog

import (
	"context"
)

// CircuitBreakerLog wraps any Log implementation's write path (Publish,
// Ack) in a CircuitBreaker, so a backend outage trips the breaker and
// callers fail fast instead of blocking every worker's write path on a
// dead connection. Reads pass through unguarded: ReadGroup already blocks
// on its own timeout and degrading reads would stall redelivery.
type CircuitBreakerLog struct {
	Log
	breaker *CircuitBreaker
}

// NewCircuitBreakerLog wraps log's write path with breaker.
func NewCircuitBreakerLog(log Log, breaker *CircuitBreaker) *CircuitBreakerLog {
	return &CircuitBreakerLog{Log: log, breaker: breaker}
}

func (c *CircuitBreakerLog) Publish(ctx context.Context, stream string, payload []byte) (string, error) {
	var id string
	err := c.breaker.Execute(func() error {
		var pubErr error
		id, pubErr = c.Log.Publish(ctx, stream, payload)
		return pubErr
	})
	return id, err
}

func (c *CircuitBreakerLog) Ack(ctx context.Context, stream, group, id string) error {
	return c.breaker.Execute(func() error {
		return c.Log.Ack(ctx, stream, group, id)
	})
}

// CurrentState exposes the underlying breaker's state for metrics/health.
func (c *CircuitBreakerLog) CurrentState() State {
	return c.breaker.CurrentState()
}

var _ Log = (*CircuitBreakerLog)(nil)

package ownership

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"verethfier/pkg/platform/circuit"
)

// BreakingOracle stops calling an unhealthy index for a cooldown period and
// reports ErrorCircuitOpen instead. Callers see an *Error either way, so an
// open breaker defers checks exactly like an outage does.
type BreakingOracle struct {
	next    Oracle
	breaker *circuit.Breaker
	logger  *slog.Logger
	gauge   prometheus.Gauge
}

type BreakerOption func(*BreakingOracle)

func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(o *BreakingOracle) {
		o.logger = logger
	}
}

// WithStateGauge exports the breaker state (1 open, 0 closed).
func WithStateGauge(g prometheus.Gauge) BreakerOption {
	return func(o *BreakingOracle) {
		o.gauge = g
	}
}

func NewBreakingOracle(next Oracle, breaker *circuit.Breaker, opts ...BreakerOption) *BreakingOracle {
	o := &BreakingOracle{next: next, breaker: breaker, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *BreakingOracle) CountOwned(ctx context.Context, address string, criteria Criteria) (int, error) {
	if !o.breaker.Allow() {
		return 0, NewError(ErrorCircuitOpen, "asset index circuit open", nil)
	}

	count, err := o.next.CountOwned(ctx, address, criteria)
	if err != nil {
		var qe *Error
		if asQueryError(err, &qe) && !qe.Retryable() {
			return 0, err
		}
		if _, change := o.breaker.RecordFailure(); change.Opened {
			o.logger.WarnContext(ctx, "asset index circuit opened",
				"breaker", o.breaker.Name(),
				"error", err,
			)
			o.setGauge(1)
		}
		return 0, err
	}

	if _, change := o.breaker.RecordSuccess(); change.Closed {
		o.logger.InfoContext(ctx, "asset index circuit closed", "breaker", o.breaker.Name())
		o.setGauge(0)
	}
	return count, nil
}

func (o *BreakingOracle) setGauge(v float64) {
	if o.gauge != nil {
		o.gauge.Set(v)
	}
}

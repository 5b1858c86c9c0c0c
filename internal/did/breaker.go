package did

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"fides/pkg/platform/circuit"
)

// BreakerFetcher observes outbound fetch outcomes through a circuit
// breaker. Requests keep flowing while the circuit is open so it can
// close again; the state feeds the readiness probe instead of gating
// traffic, since DID resolution has no fallback.
type BreakerFetcher struct {
	next    Fetcher
	breaker *circuit.Breaker
	log     *slog.Logger
}

func NewBreakerFetcher(next Fetcher, log *slog.Logger) *BreakerFetcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BreakerFetcher{
		next:    next,
		breaker: circuit.New("did-fetcher"),
		log:     log,
	}
}

func (f *BreakerFetcher) Get(ctx context.Context, url string) (int, []byte, error) {
	status, body, err := f.next.Get(ctx, url)
	f.record(err)
	return status, body, err
}

func (f *BreakerFetcher) Post(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	status, body, err := f.next.Post(ctx, url, payload)
	f.record(err)
	return status, body, err
}

// Healthy implements the readiness check contract: non-nil while the
// circuit is open.
func (f *BreakerFetcher) Healthy() error {
	if f.breaker.IsOpen() {
		return errors.New("outbound fetch circuit open")
	}
	return nil
}

func (f *BreakerFetcher) record(err error) {
	if err != nil {
		if _, change := f.breaker.RecordFailure(); change.Opened {
			f.log.Warn("outbound fetch circuit opened", "breaker", f.breaker.Name())
		}
		return
	}
	if _, change := f.breaker.RecordSuccess(); change.Closed {
		f.log.Info("outbound fetch circuit closed", "breaker", f.breaker.Name())
	}
}

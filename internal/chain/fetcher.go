package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whaleScope/internal/model"
	"whaleScope/internal/retry"
)

var (
	// ErrRateLimited marks a 429 or an explorer-level rate limit message.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformed marks a response body that could not be decoded.
	ErrMalformed = errors.New("malformed response")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Fetcher hides the RPC shape of one chain family.
type Fetcher interface {
	// LatestPosition returns the current head block or slot.
	LatestPosition(ctx context.Context) (uint64, error)
	// FetchTransfers returns transfers in the inclusive range [from, to].
	// A non-nil error means no unit of the range was fetched. Otherwise
	// Batch.LastOK reports how far the range was fully fetched.
	FetchTransfers(ctx context.Context, from, to uint64) (Batch, error)
}

// Batch is the result of a FetchTransfers call.
type Batch struct {
	Transfers []model.RawTransfer
	// LastOK is the highest position p such that every unit in [from, p]
	// was fetched. Transfers above LastOK are never returned.
	LastOK uint64
	// Partial is set when a unit after from failed; Err holds the cause.
	Partial bool
	Err     error
}

// Options configures the HTTP behaviour shared by all fetchers.
type Options struct {
	Timeout   time.Duration
	RateLimit float64
	APIKey    string
	Retry     retry.Policy
	Logger    *zap.Logger
}

func (o Options) withDefaults(chainID string) Options {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.Default()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Logger = o.Logger.With(zap.String("chain", chainID))
	if o.Retry.Classify == nil {
		o.Retry.Classify = ClassifyError
	}
	if o.Retry.OnRetry == nil {
		logger := o.Logger
		o.Retry.OnRetry = func(attempt int, wait time.Duration, err error) {
			logger.Warn("fetch retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}
	}
	return o
}

func (o Options) limiter() *rate.Limiter {
	if o.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(o.RateLimit), 1)
}

// ClassifyError maps fetch errors onto retry classes. Client errors other
// than 429 are not retried.
func ClassifyError(err error) retry.Class {
	if errors.Is(err, context.Canceled) {
		return retry.Fatal
	}
	if errors.Is(err, ErrRateLimited) {
		return retry.RateLimited
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.slotUnavailable() {
			return retry.Fatal
		}
		return retry.Retryable
	}
	var status *StatusError
	if errors.As(err, &status) && status.Code < 500 {
		return retry.Fatal
	}
	return retry.Retryable
}

// partial builds the Batch for a scan that stopped at position failed.
func partial(transfers []model.RawTransfer, from, failed uint64, err error) (Batch, error) {
	if failed <= from {
		return Batch{}, err
	}
	return Batch{Transfers: transfers, LastOK: failed - 1, Partial: true, Err: err}, nil
}

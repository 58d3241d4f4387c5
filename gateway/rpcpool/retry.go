package rpcpool

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
	"github.com/pushchain/push-rpc-gateway/gateway/metrics"
)

// retryExecutor repeats a call against one endpoint with no delay between
// attempts and stops at the first success.
type retryExecutor struct {
	chainID   string
	transport Transport
	attempts  int
	metrics   metrics.Recorder
	logger    zerolog.Logger
}

func newRetryExecutor(chainID string, transport Transport, maxRetries uint64, recorder metrics.Recorder, logger zerolog.Logger) *retryExecutor {
	attempts := int(maxRetries)
	if attempts < 1 {
		attempts = 1
	}
	return &retryExecutor{
		chainID:   chainID,
		transport: transport,
		attempts:  attempts,
		metrics:   recorder,
		logger:    logger.With().Str("component", "retry_executor").Logger(),
	}
}

// do returns the first successful record, or a retries-exhausted error
// wrapping only the last attempt's error.
func (r *retryExecutor) do(ctx context.Context, url string, req *jsonrpc.Request) (*jsonrpc.Record, error) {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = gwerrors.NewTransportError(r.chainID, url, "", err.Error(), err)
			}
			break
		}

		start := time.Now()
		rec, err := r.transport.Send(ctx, url, req)
		r.metrics.RecordUpstream(r.chainID, url, time.Since(start), err)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("url", url).
					Str("method", req.Method).
					Int("attempts", attempt).
					Msg("request succeeded after retries")
			}
			return rec, nil
		}

		lastErr = withChain(err, r.chainID)
		r.logger.Warn().
			Err(err).
			Str("url", url).
			Str("method", req.Method).
			Int("attempt", attempt).
			Int("max_attempts", r.attempts).
			Msg("request attempt failed")

		if !gwerrors.IsRetryable(err) {
			break
		}
	}

	return nil, gwerrors.NewRetriesExhaustedError(r.chainID, r.attempts, lastErr).WithContext("url", url)
}

// withChain labels a chain error produced below the pool with its chain id
func withChain(err error, chainID string) error {
	var chainErr *gwerrors.ChainError
	if gwerrors.As(err, &chainErr) && chainErr.Chain == "" {
		chainErr.Chain = chainID
	}
	return err
}

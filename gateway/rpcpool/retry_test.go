package rpcpool

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
	"github.com/pushchain/push-rpc-gateway/gateway/metrics"
)

func TestRetryExecutor(t *testing.T) {
	req := jsonrpc.NewRequest("eth_call", jsonrpc.TextArray(), jsonrpc.NumericID(1))

	t.Run("zero retries still makes one attempt", func(t *testing.T) {
		tr := new(MockTransport)
		tr.On("Send", mock.Anything, "http://a", req).
			Return(nil, gwerrors.NewTransportError("", "http://a", "502", "bad gateway", nil)).Once()

		r := newRetryExecutor("5", tr, 0, metrics.Noop{}, zerolog.Nop())
		_, err := r.do(context.Background(), "http://a", req)

		require.Error(t, err)
		assert.True(t, gwerrors.IsChainError(err, gwerrors.ErrCodeRetriesExhausted))
		tr.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("wraps only the last error and labels the chain", func(t *testing.T) {
		tr := new(MockTransport)
		first := gwerrors.NewTransportError("", "http://a", "500", "first", nil)
		last := gwerrors.NewTransportError("", "http://a", "500", "last", nil)
		tr.On("Send", mock.Anything, "http://a", req).Return(nil, first).Once()
		tr.On("Send", mock.Anything, "http://a", req).Return(nil, last).Once()

		r := newRetryExecutor("5", tr, 2, metrics.Noop{}, zerolog.Nop())
		_, err := r.do(context.Background(), "http://a", req)

		require.Error(t, err)
		assert.Equal(t, "last", gwerrors.ClientMessage(err))
		assert.True(t, gwerrors.Is(err, last))
		assert.False(t, gwerrors.Is(err, first))
		assert.Equal(t, "5", last.Chain)
	})

	t.Run("non-retryable error ends the loop", func(t *testing.T) {
		tr := new(MockTransport)
		encodeErr := gwerrors.NewInternalError("", "failed to encode request", nil)
		tr.On("Send", mock.Anything, "http://a", req).Return(nil, encodeErr).Once()

		r := newRetryExecutor("5", tr, 3, metrics.Noop{}, zerolog.Nop())
		_, err := r.do(context.Background(), "http://a", req)

		require.Error(t, err)
		assert.True(t, gwerrors.Is(err, encodeErr))
		assert.Equal(t, "failed to encode request", gwerrors.ClientMessage(err))
		tr.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("cancelled context stops before the first attempt", func(t *testing.T) {
		tr := new(MockTransport)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := newRetryExecutor("5", tr, 3, metrics.Noop{}, zerolog.Nop())
		_, err := r.do(ctx, "http://a", req)

		require.Error(t, err)
		assert.True(t, gwerrors.Is(err, context.Canceled))
		tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})
}

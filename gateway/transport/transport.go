// Package transport performs the outbound JSON-RPC exchange with upstream nodes.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxConns = 512
	userAgent       = "prpcgd"
)

// HTTPTransport posts JSON-RPC requests over HTTP using fasthttp.
type HTTPTransport struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures an HTTPTransport
type Option func(*HTTPTransport)

// WithTimeout bounds a single exchange when the context carries no earlier deadline
func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTPTransport) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// WithClock overrides the clock used to stamp records
func WithClock(now func() time.Time) Option {
	return func(t *HTTPTransport) {
		t.now = now
	}
}

// NewHTTPTransport creates a transport shared by every pool
func NewHTTPTransport(logger zerolog.Logger, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client: &fasthttp.Client{
			Name:            userAgent,
			MaxConnsPerHost: defaultMaxConns,
		},
		timeout: defaultTimeout,
		logger:  logger.With().Str("component", "transport").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type exchange struct {
	status int
	body   []byte
	err    error
}

// Send posts req to url and returns the observed record. Only 200, 201 and
// 202 count as success; any other status yields a transport error whose
// message is the raw response body.
func (t *HTTPTransport) Send(ctx context.Context, url string, req *jsonrpc.Request) (*jsonrpc.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, gwerrors.NewTransportError("", url, "", err.Error(), err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.NewInternalError("", "failed to encode request", err)
	}

	start := t.now()
	ex := t.do(ctx, url, payload)
	elapsed := t.now().Sub(start)

	if ex.err != nil {
		t.logger.Debug().Err(ex.err).Str("url", url).Str("method", req.Method).Msg("upstream exchange failed")
		return nil, gwerrors.NewTransportError("", url, "", ex.err.Error(), ex.err)
	}

	if !isSuccess(ex.status) {
		t.logger.Debug().
			Int("status", ex.status).
			Str("url", url).
			Str("method", req.Method).
			Msg("upstream returned non-success status")
		return nil, gwerrors.NewTransportError("", url, fasthttp.StatusMessage(ex.status), string(ex.body), nil).
			WithContext("status_code", ex.status)
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(ex.body, &resp); err != nil {
		return nil, gwerrors.NewDecodeError("", err.Error(), err).WithContext("url", url)
	}

	return &jsonrpc.Record{
		Method:    req.Method,
		Params:    req.Params,
		Result:    resp.Result,
		Error:     resp.Error,
		TimeTaken: elapsed.Milliseconds(),
		StartTime: t.now(),
	}, nil
}

// do runs the exchange on its own goroutine so a cancelled context returns
// immediately. The goroutine owns the pooled request and response.
func (t *HTTPTransport) do(ctx context.Context, url string, payload []byte) exchange {
	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)
	resp := fasthttp.AcquireResponse()

	done := make(chan exchange, 1)
	go func() {
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		var ex exchange
		if ex.err = t.client.DoDeadline(req, resp, deadline); ex.err == nil {
			ex.status = resp.StatusCode()
			ex.body = append([]byte(nil), resp.Body()...)
		}
		done <- ex
	}()

	select {
	case ex := <-done:
		return ex
	case <-ctx.Done():
		return exchange{err: ctx.Err()}
	}
}

func isSuccess(status int) bool {
	switch status {
	case fasthttp.StatusOK, fasthttp.StatusCreated, fasthttp.StatusAccepted:
		return true
	default:
		return false
	}
}

// CloseIdleConnections releases pooled upstream connections
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

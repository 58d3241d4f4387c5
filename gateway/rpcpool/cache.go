package rpcpool

import (
	"sort"
	"time"

	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

// ResponseCache keeps the most recent successful record per method.
// Parameters are not part of the key.
type ResponseCache map[string]*jsonrpc.Record

// lookup returns the slot for method when it is no older than ttl microseconds.
// A slot exactly ttl old is still fresh.
func (c ResponseCache) lookup(method string, now time.Time, ttl int64) (*jsonrpc.Record, bool) {
	rec, ok := c[method]
	if !ok || rec == nil {
		return nil, false
	}
	elapsed := now.Sub(rec.StartTime).Microseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > ttl {
		return nil, false
	}
	return rec, true
}

func (c ResponseCache) store(method string, rec *jsonrpc.Record) {
	c[method] = rec
}

func (c ResponseCache) methods() []string {
	methods := make([]string, 0, len(c))
	for m := range c {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

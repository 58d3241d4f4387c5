package rpcpool

import (
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

// Endpoint is the health record of one upstream node.
type Endpoint struct {
	URL string `json:"url"`

	// AvgResponseTime is a cumulative mean in milliseconds
	AvgResponseTime int64 `json:"avg_response_time"`

	// Connections counts admitted calls that have not completed successfully
	Connections uint64 `json:"connections"`

	// Weight is reserved and never consulted
	Weight uint64 `json:"weight"`

	// ResponseCounter counts successes since the endpoint last became primary
	ResponseCounter uint64 `json:"response_counter"`

	// Responses is the full call history; it is never trimmed
	Responses []*jsonrpc.Record `json:"responses"`
}

// NewEndpoint creates an endpoint seeded with its bootstrap probe
func NewEndpoint(url string, probe *jsonrpc.Record) *Endpoint {
	e := &Endpoint{URL: url, Responses: []*jsonrpc.Record{}}
	if probe != nil {
		e.AvgResponseTime = probe.TimeTaken
		e.Responses = append(e.Responses, probe)
	}
	return e
}

func (e *Endpoint) admit() {
	e.Connections++
}

func (e *Endpoint) release() {
	if e.Connections > 0 {
		e.Connections--
	}
}

// observe applies a successful call: release the connection, append the
// record and fold its latency into the running mean.
func (e *Endpoint) observe(rec *jsonrpc.Record) {
	e.release()
	e.Responses = append(e.Responses, rec)
	e.ResponseCounter++
	e.AvgResponseTime = (e.AvgResponseTime + rec.TimeTaken) / int64(len(e.Responses))
}

func (e *Endpoint) info(rank int) EndpointInfo {
	info := EndpointInfo{
		URL:             e.URL,
		Rank:            rank,
		AvgResponseTime: e.AvgResponseTime,
		Connections:     e.Connections,
		ResponseCounter: e.ResponseCounter,
		HistoryLength:   len(e.Responses),
	}
	if n := len(e.Responses); n > 0 {
		info.LastResponseAt = e.Responses[n-1].StartTime
	}
	return info
}

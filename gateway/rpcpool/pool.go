package rpcpool

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
)

// Pool is the ranked endpoint set of one chain together with its limits and
// response cache. Endpoints[0] is the primary. Pool is not safe for
// concurrent use; Manager serialises access to it.
type Pool struct {
	Chain         ChainDescriptor `json:"chain"`
	Endpoints     []*Endpoint     `json:"endpoints"`
	Config        PoolConfig      `json:"config"`
	Cache         CacheOptions    `json:"cache"`
	ResponseCache ResponseCache   `json:"response_cache"`
}

// DecodePool reads a snapshot produced by Encode
func DecodePool(data []byte) (*Pool, error) {
	var p Pool
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode serialises the pool as a snapshot document
func (p *Pool) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func (p *Pool) validate() error {
	if p.Chain.ID == "" {
		return fmt.Errorf("pool has no chain id")
	}
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("pool for chain %s has no endpoints", p.Chain.ID)
	}
	for i, ep := range p.Endpoints {
		if ep == nil || ep.URL == "" {
			return fmt.Errorf("pool for chain %s has an empty endpoint at rank %d", p.Chain.ID, i)
		}
		if ep.Responses == nil {
			ep.Responses = []*jsonrpc.Record{}
		}
	}
	if p.ResponseCache == nil {
		p.ResponseCache = ResponseCache{}
	}
	return nil
}

func (p *Pool) primary() *Endpoint {
	return p.Endpoints[0]
}

// overloaded reports whether the primary exceeded either limit
func (p *Pool) overloaded() bool {
	primary := p.primary()
	return primary.Connections > p.Config.MaxConnections ||
		primary.ResponseCounter > p.Config.MaxResponses
}

// rotate demotes the primary to the tail, resetting its response counter,
// then promotes the endpoint at rank promote when it still sits ahead of the
// tail. It never re-sorts.
func (p *Pool) rotate(promote int) {
	last := len(p.Endpoints) - 1
	p.Endpoints[0].ResponseCounter = 0
	p.swap(0, last)
	if promote > 0 && promote < last {
		p.swap(0, promote)
	}
}

func (p *Pool) swap(i, j int) {
	p.Endpoints[i], p.Endpoints[j] = p.Endpoints[j], p.Endpoints[i]
}

// sortByLatency orders endpoints by ascending average response time.
// Ties keep their relative order.
func (p *Pool) sortByLatency() {
	sort.SliceStable(p.Endpoints, func(i, j int) bool {
		return p.Endpoints[i].AvgResponseTime < p.Endpoints[j].AvgResponseTime
	})
}

func (p *Pool) isPrimary(ep *Endpoint) bool {
	return len(p.Endpoints) > 0 && p.Endpoints[0] == ep
}

func (p *Pool) stats() *PoolStats {
	endpoints := make([]EndpointInfo, len(p.Endpoints))
	for i, ep := range p.Endpoints {
		endpoints[i] = ep.info(i)
	}
	return &PoolStats{
		ChainID:        p.Chain.ID,
		ChainKind:      string(p.Chain.Kind),
		TotalEndpoints: len(p.Endpoints),
		Primary:        p.primary().URL,
		CachedMethods:  p.ResponseCache.methods(),
		Config:         p.Config,
		Cache:          p.Cache,
		Endpoints:      endpoints,
	}
}

// Package remote fetches account state from a cluster over JSON-RPC.
//
// It is the remote fallback of the resolution chain: when no local layer
// holds an account, the scenario overlay asks a remote Source, and Client is
// the Source implementation backed by getAccountInfo.
package remote

import (
	"context"
	"sync"
	"time"
)

// Endpoint represents an RPC endpoint with health tracking.
type Endpoint struct {
	URL         string
	Healthy     bool
	LastError   error
	LastSuccess time.Time
	Latency     time.Duration
}

// Pool hands out endpoints and records their health.
type Pool interface {
	// GetEndpoint returns an endpoint for the next request.
	GetEndpoint(ctx context.Context) (*Endpoint, error)

	// MarkUnhealthy records a transport failure against url.
	MarkUnhealthy(url string, err error)

	// MarkHealthy records a successful request against url.
	MarkHealthy(url string, latency time.Duration)

	// HealthyCount returns the number of currently healthy endpoints.
	HealthyCount() int
}

// SimplePool rotates through a fixed endpoint list, skipping unhealthy ones.
type SimplePool struct {
	endpoints []*Endpoint
	mu        sync.Mutex
	idx       int
}

// NewSimplePool creates a new SimplePool with the given endpoints.
func NewSimplePool(urls ...string) *SimplePool {
	endpoints := make([]*Endpoint, len(urls))
	for i, url := range urls {
		endpoints[i] = &Endpoint{
			URL:     url,
			Healthy: true,
		}
	}
	return &SimplePool{endpoints: endpoints}
}

// GetEndpoint returns the next healthy endpoint using round-robin. When every
// endpoint is unhealthy the first one is returned so a recovered node is retried.
func (p *SimplePool) GetEndpoint(ctx context.Context) (*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.endpoints); i++ {
		idx := (p.idx + i) % len(p.endpoints)
		ep := p.endpoints[idx]
		if ep.Healthy {
			p.idx = (idx + 1) % len(p.endpoints)
			return ep, nil
		}
	}

	if len(p.endpoints) > 0 {
		return p.endpoints[0], nil
	}
	return nil, ErrNoEndpoints
}

// MarkUnhealthy marks an endpoint as unhealthy.
func (p *SimplePool) MarkUnhealthy(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.endpoints {
		if ep.URL == url {
			ep.Healthy = false
			ep.LastError = err
			return
		}
	}
}

// MarkHealthy marks an endpoint as healthy.
func (p *SimplePool) MarkHealthy(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.endpoints {
		if ep.URL == url {
			ep.Healthy = true
			ep.LastSuccess = time.Now()
			ep.Latency = latency
			ep.LastError = nil
			return
		}
	}
}

// HealthyCount returns the number of healthy endpoints.
func (p *SimplePool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, ep := range p.endpoints {
		if ep.Healthy {
			count++
		}
	}
	return count
}

package chain

import (
	"github.com/sirupsen/logrus"
)

// Pool holds one client per configured node. The first endpoint is the default.
type Pool struct {
	endpoints []string
	clients   map[string]*Client
}

func NewPool(endpoints []string, opts Options, logger *logrus.Logger) *Pool {
	p := &Pool{clients: make(map[string]*Client, len(endpoints))}
	for _, ep := range endpoints {
		if _, ok := p.clients[ep]; ok {
			continue
		}
		p.endpoints = append(p.endpoints, ep)
		p.clients[ep] = NewClient(ep, opts, logger)
	}
	return p
}

// For returns the client for endpoint, or the default client when the
// endpoint is not configured.
func (p *Pool) For(endpoint string) *Client {
	if c, ok := p.clients[endpoint]; ok {
		return c
	}
	return p.Default()
}

func (p *Pool) Default() *Client {
	if len(p.endpoints) == 0 {
		return nil
	}
	return p.clients[p.endpoints[0]]
}

// Endpoints lists the configured nodes in order.
func (p *Pool) Endpoints() []string {
	return append([]string(nil), p.endpoints...)
}

// Allowed reports whether endpoint is configured.
func (p *Pool) Allowed(endpoint string) bool {
	_, ok := p.clients[endpoint]
	return ok
}

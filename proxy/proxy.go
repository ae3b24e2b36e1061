// Package proxy configures outbound HTTP proxying for the session from properties,
// falling back to the standard proxy environment variables.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/ethereum-optimism/infra/op-session/properties"
)

// Configurator resolves the proxy configuration and installs it on a transport
type Configurator struct {
	props     func() *properties.Properties
	log       log.Logger
	transport *http.Transport
	fromEnv   func() *httpproxy.Config

	mu  sync.RWMutex
	cfg *httpproxy.Config
}

// New creates a configurator. transport may be nil, in which case the proxy is
// installed on http.DefaultTransport when it is an *http.Transport.
func New(props func() *properties.Properties, logger log.Logger, transport *http.Transport) *Configurator {
	if transport == nil {
		if t, ok := http.DefaultTransport.(*http.Transport); ok {
			transport = t
		}
	}
	return &Configurator{
		props:     props,
		log:       logger,
		transport: transport,
		fromEnv:   httpproxy.FromEnvironment,
	}
}

// Configure resolves the proxy settings and installs them
func (c *Configurator) Configure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := c.fromEnv()
	p := c.props()
	if v := p.String(properties.KeyHTTPProxy, ""); v != "" {
		cfg.HTTPProxy = v
	}
	if v := p.String(properties.KeyHTTPSProxy, ""); v != "" {
		cfg.HTTPSProxy = v
	}
	if v := p.String(properties.KeyNoProxy, ""); v != "" {
		cfg.NoProxy = v
	}
	for name, raw := range map[string]string{"http": cfg.HTTPProxy, "https": cfg.HTTPSProxy} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("invalid %s proxy %q: %w", name, raw, err)
		}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	if c.transport != nil {
		c.transport.Proxy = c.ProxyFunc()
	}
	c.log.Debug("Proxy configured",
		"http", cfg.HTTPProxy != "",
		"https", cfg.HTTPSProxy != "",
		"noProxy", cfg.NoProxy)
	return nil
}

// ProxyFunc returns a function suitable for http.Transport.Proxy. Before
// Configure it never proxies.
func (c *Configurator) ProxyFunc() func(*http.Request) (*url.URL, error) {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()
	if cfg == nil {
		return func(*http.Request) (*url.URL, error) { return nil, nil }
	}
	fn := cfg.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) {
		return fn(r.URL)
	}
}

package proxy

import (
	"context"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http/httpproxy"

	"github.com/ethereum-optimism/infra/op-session/properties"
)

func TestConfigurator_PropertiesOverrideEnvironment(t *testing.T) {
	props := properties.New(map[string]string{
		properties.KeyHTTPSProxy: "http://props-proxy:3128",
		properties.KeyNoProxy:    "internal.example",
	})
	transport := &http.Transport{}
	c := New(func() *properties.Properties { return props }, log.NewLogger(log.DiscardHandler()), transport)
	c.fromEnv = func() *httpproxy.Config {
		return &httpproxy.Config{HTTPSProxy: "http://env-proxy:8080"}
	}

	require.NoError(t, c.Configure(context.Background()))
	require.NotNil(t, transport.Proxy)

	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	require.NoError(t, err)
	u, err := transport.Proxy(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "props-proxy:3128", u.Host)

	req, err = http.NewRequest(http.MethodGet, "https://internal.example/", nil)
	require.NoError(t, err)
	u, err = transport.Proxy(req)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestConfigurator_NoConfigNeverProxies(t *testing.T) {
	c := New(func() *properties.Properties { return properties.New(nil) }, log.NewLogger(log.DiscardHandler()), &http.Transport{})
	c.fromEnv = func() *httpproxy.Config { return &httpproxy.Config{} }

	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	require.NoError(t, err)

	u, err := c.ProxyFunc()(req)
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, c.Configure(context.Background()))
	u, err = c.ProxyFunc()(req)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestConfigurator_InvalidProxy(t *testing.T) {
	props := properties.New(map[string]string{properties.KeyHTTPProxy: "http://bad host:%zz"})
	c := New(func() *properties.Properties { return props }, log.NewLogger(log.DiscardHandler()), &http.Transport{})
	c.fromEnv = func() *httpproxy.Config { return &httpproxy.Config{} }
	require.ErrorContains(t, c.Configure(context.Background()), "invalid http proxy")
}

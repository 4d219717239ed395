// File: internal/network/httpclient.go
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/iconfetch/internal/config"
	"github.com/xkilldash9x/iconfetch/internal/observability"
)

// Constants for default TCP/HTTP settings.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 15 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second

	// A fetch run talks to a single host, so the per-host limits matter most.
	DefaultMaxIdleConns        = 16
	DefaultMaxIdleConnsPerHost = 8
	DefaultMaxConnsPerHost     = 16
	DefaultIdleConnTimeout     = 30 * time.Second
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	IgnoreTLSErrors bool
	TLSConfig       *tls.Config

	RequestTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	DialerConfig *DialerConfig

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	ForceHTTP2        bool
	DisableKeepAlives bool

	ProxyURL *url.URL

	// UserAgent is sent on every request that does not set its own.
	UserAgent string
	// Headers are added to every request that does not already carry them.
	Headers map[string]string

	RetryPolicy *RetryPolicy

	Logger *zap.Logger
}

// Client is a wrapper around the standard http.Client.
//
// This client is safe for concurrent use by multiple goroutines. The caller
// is responsible for closing the Response.Body after consuming it.
type Client struct {
	*http.Client
}

// NewDefaultClientConfig creates a configuration suitable for polite bulk downloads.
func NewDefaultClientConfig() *ClientConfig {
	dialerCfg := NewDialerConfig()
	dialerCfg.Timeout = DefaultDialTimeout
	dialerCfg.KeepAlive = DefaultKeepAliveInterval
	dialerCfg.ForceNoDelay = true

	return &ClientConfig{
		DialerConfig:          dialerCfg,
		RequestTimeout:        DefaultRequestTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       DefaultMaxConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ForceHTTP2:            true,
		UserAgent:             config.DefaultUserAgent,
		RetryPolicy:           NewDefaultRetryPolicy(),
		Logger:                observability.GetLogger().Named("httpclient"),
	}
}

// NewClientConfigFromSettings builds a ClientConfig from the network section
// of the application configuration.
func NewClientConfigFromSettings(settings config.NetworkConfig) (*ClientConfig, error) {
	cfg := NewDefaultClientConfig()
	cfg.RequestTimeout = settings.Timeout
	cfg.IgnoreTLSErrors = settings.IgnoreTLSErrors
	cfg.ForceHTTP2 = settings.ForceHTTP2
	if settings.UserAgent != "" {
		cfg.UserAgent = settings.UserAgent
	}
	cfg.Headers = settings.Headers

	if settings.ProxyURL != "" {
		proxyURL, err := url.Parse(settings.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		cfg.ProxyURL = proxyURL
	}

	cfg.RetryPolicy.MaxRetries = settings.Retry.MaxRetries
	if settings.Retry.InitialBackoff > 0 {
		cfg.RetryPolicy.InitialBackoff = settings.Retry.InitialBackoff
	}
	if settings.Retry.MaxBackoff > 0 {
		cfg.RetryPolicy.MaxBackoff = settings.Retry.MaxBackoff
	}
	return cfg, nil
}

// NewHTTPTransport creates and configures an http.Transport based on the provided configuration.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.DialerConfig == nil {
		config.DialerConfig = NewDefaultClientConfig().DialerConfig
	}

	tlsConfig := configureTLS(config)
	dialerConfig := config.DialerConfig.Clone()

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return DialTCPContext(ctx, network, addr, dialerConfig)
		},
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		DisableKeepAlives:     config.DisableKeepAlives,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		// Decoding happens in compressionTransport.
		DisableCompression: true,
		ForceAttemptHTTP2:  config.ForceHTTP2,
	}

	if config.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(config.ProxyURL)
	}

	if config.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			config.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

// NewClient creates the client wrapper. Requests pass through header
// injection, then retries, then response decoding, then the tuned transport.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	var rt http.RoundTripper = NewHTTPTransport(config)
	rt = &compressionTransport{next: rt}
	rt = &retryTransport{next: rt, policy: config.RetryPolicy, logger: config.Logger, sleep: sleepContext}
	rt = &headerTransport{next: rt, userAgent: config.UserAgent, headers: config.Headers}

	return &Client{
		Client: &http.Client{
			Transport: rt,
			Timeout:   config.RequestTimeout,
		},
	}
}

// CloseIdleConnections closes idle connections held by the base transport.
func (c *Client) CloseIdleConnections() {
	if closer, ok := unwrapTransport(c.Client.Transport).(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// unwrapTransport walks the middleware chain down to the base transport.
func unwrapTransport(rt http.RoundTripper) http.RoundTripper {
	for {
		switch t := rt.(type) {
		case *headerTransport:
			rt = t.next
		case *retryTransport:
			rt = t.next
		case *compressionTransport:
			rt = t.next
		default:
			return rt
		}
	}
}

// headerTransport sets default request headers.
type headerTransport struct {
	next      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (ht *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	if ht.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ht.userAgent)
	}
	for k, v := range ht.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return ht.next.RoundTrip(req)
}

// configureTLS sets up the TLS configuration with strong defaults.
func configureTLS(config *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	switch {
	case config.TLSConfig != nil:
		tlsConfig = config.TLSConfig.Clone()
	case config.DialerConfig != nil && config.DialerConfig.TLSConfig != nil:
		tlsConfig = config.DialerConfig.TLSConfig.Clone()
	default:
		tlsConfig = NewDialerConfig().TLSConfig
	}

	// Useful for self-signed mirrors and intercepting proxies.
	tlsConfig.InsecureSkipVerify = config.IgnoreTLSErrors
	return tlsConfig
}

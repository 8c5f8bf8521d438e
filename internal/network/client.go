package network

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// PoolConfig sizes the connection pool of the shared client. There is no
// overall deadline: every request carries its own through its context and
// streamed downloads add a stall watchdog.
type PoolConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultPoolConfig returns a pool sized for a handful of concurrent
// downloads next to interactive API calls against the same host.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// NewClient returns the client shared by every worker. It owns the cookie
// jar that is persisted between sessions. A nil pool uses DefaultPoolConfig.
func NewClient(pool *PoolConfig) *http.Client {
	cfg := DefaultPoolConfig()
	if pool != nil {
		cfg = *pool
	}

	// cookiejar.New only fails on a bad PublicSuffixList
	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Transport: newTransport(cfg),
		Jar:       jar,
	}
}

func newTransport(cfg PoolConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = cfg.MaxIdleConns
	t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	t.MaxConnsPerHost = cfg.MaxConnsPerHost
	t.IdleConnTimeout = cfg.IdleConnTimeout
	t.TLSHandshakeTimeout = cfg.TLSHandshakeTimeout
	t.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	t.MaxResponseHeaderBytes = 1 << 20
	return t
}

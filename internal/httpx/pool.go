// Package httpx provides a shared, tuned HTTP client so the search
// provider's code-search/content fetches and every builtin validator reuse
// one connection pool instead of each opening its own transport. The pool
// is sized for this module's default worker concurrency
// (search+detect+validate workers all sharing a handful of GitHub search
// tokens and a couple dozen issuing-service hosts), not for general-purpose
// fan-out.
package httpx

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxIdleConnsPerHost bounds persistent connections to any one issuing
// service or search host. It is sized a little above the pipeline's default
// ValidateWorkers (4) and SearchWorkers (8) so a full burst of concurrent
// validators hitting one service doesn't thrash the pool, without holding
// open far more connections than the pipeline will ever use concurrently.
const MaxIdleConnsPerHost = 16

var (
	transportOnce sync.Once
	transport     *http.Transport
	clientsMu     sync.Mutex
	clients       = map[time.Duration]*http.Client{}
)

// SharedClient returns a process-wide *http.Client for the given timeout,
// creating one on first use and caching it by timeout thereafter. Search
// fetches and validator identity checks use different timeouts, so each
// gets its own cached client over the one shared transport.
func SharedClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientsMu.Lock()
	defer clientsMu.Unlock()
	if client, ok := clients[timeout]; ok {
		return client
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport(),
	}
	clients[timeout] = client
	return client
}

// CloseIdleConnections drops every pooled connection. The pipeline calls
// this once a run has flushed its sinks, so a long-lived "mcp" or "search"
// process doesn't hold open connections to issuing services between runs.
func CloseIdleConnections() {
	sharedTransport().CloseIdleConnections()
}

func sharedTransport() *http.Transport {
	transportOnce.Do(func() {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2: true,
			// Every issuing-service request and search fetch carries a
			// bearer credential; TLS verification is never relaxed here,
			// even for a self-hosted GitHub Enterprise base URL.
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: false},
			MaxIdleConns:          256,
			MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	})
	return transport
}

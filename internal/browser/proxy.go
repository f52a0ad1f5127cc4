package browser

import (
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/MapPhone/internal/config"
)

// ProxyRotator hands out a proxy per browser session.
type ProxyRotator struct {
	proxies  []*proxyEntry
	rotation string
	index    atomic.Int64
	mu       sync.RWMutex
	logger   *slog.Logger
}

type proxyEntry struct {
	URL     *url.URL
	Healthy bool
	LastErr error
	LastUse time.Time
}

// NewProxyRotator creates a rotator from configuration. A disabled or empty
// configuration yields a rotator whose Next always returns nil.
func NewProxyRotator(cfg config.ProxyConfig, logger *slog.Logger) *ProxyRotator {
	pr := &ProxyRotator{
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_rotator"),
	}
	if !cfg.Enabled {
		return pr
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pr.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pr.proxies = append(pr.proxies, &proxyEntry{URL: u, Healthy: true})
	}

	pr.logger.Info("proxy rotation enabled", "count", len(pr.proxies), "rotation", cfg.Rotation)
	return pr
}

// Next returns the proxy for the next session, or nil for a direct
// connection. When every proxy has failed, all are given another chance.
func (pr *ProxyRotator) Next() *url.URL {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if len(pr.proxies) == 0 {
		return nil
	}

	healthy := pr.healthyLocked()
	if len(healthy) == 0 {
		for _, p := range pr.proxies {
			p.Healthy = true
		}
		healthy = pr.proxies
	}

	var entry *proxyEntry
	switch pr.rotation {
	case "random":
		entry = healthy[rand.Intn(len(healthy))]
	default: // round_robin
		idx := (pr.index.Add(1) - 1) % int64(len(healthy))
		entry = healthy[idx]
	}
	entry.LastUse = time.Now()
	return entry.URL
}

// MarkFailed takes a proxy out of rotation.
func (pr *ProxyRotator) MarkFailed(proxyURL *url.URL, err error) {
	if proxyURL == nil {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()

	for _, p := range pr.proxies {
		if p.URL.String() == proxyURL.String() {
			p.Healthy = false
			p.LastErr = err
			pr.logger.Warn("proxy marked unhealthy", "proxy", proxyURL.Host, "error", err)
			return
		}
	}
}

// Count returns the total number of proxies.
func (pr *ProxyRotator) Count() int {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return len(pr.proxies)
}

// HealthyCount returns the number of proxies still in rotation.
func (pr *ProxyRotator) HealthyCount() int {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return len(pr.healthyLocked())
}

func (pr *ProxyRotator) healthyLocked() []*proxyEntry {
	healthy := make([]*proxyEntry, 0, len(pr.proxies))
	for _, p := range pr.proxies {
		if p.Healthy {
			healthy = append(healthy, p)
		}
	}
	return healthy
}

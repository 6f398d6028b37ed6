// Package catalog discovers and caches the list of available decision-support
// services. Discovery failures degrade to the previously cached list; this
// package never returns an error to its callers.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cds-orchestrator/internal/cds/model"
	cdserrors "cds-orchestrator/internal/common/errors"
	"cds-orchestrator/internal/common/httpclient"
	"cds-orchestrator/internal/common/logger"
	"cds-orchestrator/internal/common/metrics"
	"cds-orchestrator/internal/common/validation"
)

// DefaultTTL is how long a discovery result is served from cache.
const DefaultTTL = 5 * time.Minute

// Catalog caches the discovery document with a TTL. The cache entry is
// replaced wholesale on refresh, never partially mutated.
type Catalog struct {
	baseURL   string
	authToken string
	ttl       time.Duration
	client    *httpclient.Client
	logger    logger.Logger

	mu        sync.RWMutex
	services  []model.Service
	fetchedAt time.Time
	fetched   bool

	now func() time.Time
}

func New(baseURL, authToken string, ttl time.Duration, client *httpclient.Client, log logger.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{
		baseURL:   baseURL,
		authToken: authToken,
		ttl:       ttl,
		client:    client,
		logger:    log.WithFields(map[string]interface{}{"component": "catalog"}),
		now:       time.Now,
	}
}

// Discover returns the cached service list when it is younger than the TTL,
// otherwise refetches. On fetch failure the previous list (or an empty list)
// is returned and the failure is only logged.
func (c *Catalog) Discover(ctx context.Context) []model.Service {
	c.mu.RLock()
	if c.fetched && c.now().Sub(c.fetchedAt) < c.ttl {
		services := copyServices(c.services)
		c.mu.RUnlock()
		metrics.CacheHitsTotal.WithLabelValues("catalog").Inc()
		return services
	}
	c.mu.RUnlock()
	metrics.CacheMissesTotal.WithLabelValues("catalog").Inc()

	services, err := c.fetch(ctx)
	if err != nil {
		metrics.DiscoveryTotal.WithLabelValues("error").Inc()
		c.logger.WithError(err).Warn("service discovery failed, serving stale catalog", map[string]interface{}{
			"baseUrl": c.baseURL,
		})

		c.mu.RLock()
		defer c.mu.RUnlock()
		return copyServices(c.services)
	}

	metrics.DiscoveryTotal.WithLabelValues("success").Inc()

	c.mu.Lock()
	c.services = services
	c.fetchedAt = c.now()
	c.fetched = true
	c.mu.Unlock()

	c.logger.Info("service catalog refreshed", map[string]interface{}{
		"serviceCount": len(services),
	})

	return copyServices(services)
}

// ByHookType returns the discovered services registered for the given hook
// type, in discovery order. Triggers a discovery when the cache is cold.
func (c *Catalog) ByHookType(ctx context.Context, hookType string) []model.Service {
	var matched []model.Service
	for _, svc := range c.Discover(ctx) {
		if svc.Hook == hookType {
			matched = append(matched, svc)
		}
	}
	return matched
}

// Invalidate clears the cache eagerly, e.g. on reconfiguration. The next
// Discover call refetches.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = nil
	c.fetched = false
	c.fetchedAt = time.Time{}
}

func (c *Catalog) fetch(ctx context.Context) ([]model.Service, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet, c.baseURL+"/cds-services", c.authToken, nil)
	if err != nil {
		return nil, cdserrors.NewDiscoveryFailedError(err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, cdserrors.NewDiscoveryFailedError(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, cdserrors.NewDiscoveryFailedError(fmt.Errorf("unexpected status %d", res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, cdserrors.NewDiscoveryFailedError(err)
	}

	if err := validation.ValidateDiscoveryResponse(body); err != nil {
		return nil, cdserrors.NewDiscoveryInvalidError(err.Error())
	}

	var discovery model.DiscoveryResponse
	if err := json.Unmarshal(body, &discovery); err != nil {
		return nil, cdserrors.NewDiscoveryInvalidError(err.Error())
	}

	return discovery.Services, nil
}

func copyServices(services []model.Service) []model.Service {
	if services == nil {
		return []model.Service{}
	}
	out := make([]model.Service, len(services))
	copy(out, services)
	return out
}

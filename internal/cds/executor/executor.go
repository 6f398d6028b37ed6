// Package executor performs one hook invocation against one decision-support
// service, with short-lived response caching. A failing service degrades to
// empty cards; the broader firing is never aborted from here.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cds-orchestrator/internal/cds/model"
	cdserrors "cds-orchestrator/internal/common/errors"
	"cds-orchestrator/internal/common/httpclient"
	"cds-orchestrator/internal/common/logger"
	"cds-orchestrator/internal/common/metrics"
	"cds-orchestrator/internal/common/validation"

	"github.com/google/uuid"
)

// DefaultCacheTTL is how long an execution result is served from cache.
const DefaultCacheTTL = 30 * time.Second

type Executor struct {
	baseURL   string
	authToken string
	cache     ResponseCache
	cacheTTL  time.Duration
	timeout   time.Duration
	client    *httpclient.Client
	logger    logger.Logger
}

func New(baseURL, authToken string, cache ResponseCache, cacheTTL, timeout time.Duration, client *httpclient.Client, log logger.Logger) *Executor {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Executor{
		baseURL:   baseURL,
		authToken: authToken,
		cache:     cache,
		cacheTTL:  cacheTTL,
		timeout:   timeout,
		client:    client,
		logger:    log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Execute runs one hook invocation against one service. Results younger than
// the cache TTL are served from cache. On any failure it logs a warning and
// returns an empty response; it never returns an error.
func (e *Executor) Execute(ctx context.Context, svc model.Service, req model.HookRequest) model.HookResponse {
	key := cacheKey(svc.ID, req)

	if cached, ok := e.cache.Get(ctx, key); ok {
		metrics.CacheHitsTotal.WithLabelValues("response").Inc()
		metrics.ServiceCallsTotal.WithLabelValues(svc.ID, "cache_hit").Inc()
		return *cached
	}
	metrics.CacheMissesTotal.WithLabelValues("response").Inc()

	resp, err := e.call(ctx, svc, req)
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
			err = cdserrors.NewExecutionTimeoutError(svc.ID)
		}
		metrics.ServiceCallsTotal.WithLabelValues(svc.ID, status).Inc()

		fields := map[string]interface{}{
			"serviceId": svc.ID,
			"hookType":  req.Hook,
		}
		var stdErr *cdserrors.StandardError
		if errors.As(err, &stdErr) {
			fields["category"] = cdserrors.GetErrorCategory(stdErr.Code)
			fields["retryable"] = cdserrors.IsRetryableErrorCode(stdErr.Code)
		}
		e.logger.WithError(err).Warn("hook execution failed, degrading to empty cards", fields)
		return model.HookResponse{Cards: []model.Card{}}
	}

	// Stamp every card with its origin so downstream feedback can find its
	// way back, and backfill uuids for services that omit them.
	for i := range resp.Cards {
		resp.Cards[i].OriginServiceID = svc.ID
		resp.Cards[i].OriginServiceTitle = svc.Title
		if resp.Cards[i].UUID == "" {
			resp.Cards[i].UUID = uuid.NewString()
		}
	}

	metrics.ServiceCallsTotal.WithLabelValues(svc.ID, "success").Inc()

	e.cache.Set(ctx, key, resp, e.cacheTTL)
	e.cache.Prune(ctx)

	return *resp
}

// Invalidate clears the response cache, e.g. on reconfiguration.
func (e *Executor) Invalidate(ctx context.Context) {
	e.cache.Invalidate(ctx)
}

func (e *Executor) call(ctx context.Context, svc model.Service, req model.HookRequest) (*model.HookResponse, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	httpReq, err := httpclient.NewJSONRequest(ctx, http.MethodPost, e.baseURL+"/cds-services/"+svc.ID, e.authToken, req)
	if err != nil {
		return nil, cdserrors.NewExecutionFailedError(svc.ID, err)
	}

	res, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("service call: %w", ctx.Err())
		}
		return nil, cdserrors.NewExecutionFailedError(svc.ID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, cdserrors.NewExecutionFailedError(svc.ID, fmt.Errorf("unexpected status %d", res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, cdserrors.NewExecutionFailedError(svc.ID, err)
	}

	if err := validation.ValidateHookResponse(body); err != nil {
		return nil, cdserrors.NewResponseInvalidError(svc.ID, err.Error())
	}

	var resp model.HookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, cdserrors.NewResponseInvalidError(svc.ID, err.Error())
	}

	return &resp, nil
}

// cacheKey fingerprints a request by service and semantic content. The hook
// instance id is regenerated per call and must not defeat caching, so it is
// stripped before serializing.
func cacheKey(serviceID string, req model.HookRequest) string {
	req.HookInstance = ""
	data, err := json.Marshal(req)
	if err != nil {
		return serviceID
	}
	return serviceID + ":" + string(data)
}

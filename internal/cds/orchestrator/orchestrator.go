// Package orchestrator coordinates hook firings: it deduplicates and
// debounces triggers, resolves candidate services, fans out executions in
// parallel, groups the returned cards by presentation policy, and publishes
// the active alert set. Failures anywhere below are absorbed; a firing never
// surfaces an error to the workflow that triggered it.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"cds-orchestrator/internal/cds/catalog"
	"cds-orchestrator/internal/cds/executor"
	"cds-orchestrator/internal/cds/hookcontext"
	"cds-orchestrator/internal/cds/model"
	cdserrors "cds-orchestrator/internal/common/errors"
	"cds-orchestrator/internal/common/logger"
	"cds-orchestrator/internal/common/metrics"
	"cds-orchestrator/internal/common/observability"
)

// DefaultDebounceDelay is used when FireDebounced is called with no delay.
const DefaultDebounceDelay = 500 * time.Millisecond

// Listener receives the flat card list of every completed firing, for
// cross-cutting consumers such as notification counters and audit sinks.
type Listener func(hookType string, cards []model.Card)

// lane serializes firings for one hook type. Lanes for different hook types
// are fully independent.
type lane struct {
	mu           sync.Mutex
	state        string
	lastDedupKey string
	timer        *time.Timer
}

const (
	laneIdle       = "idle"
	laneDebouncing = "debouncing"
	laneFiring     = "firing"
	laneSettled    = "settled"
)

var defaultPolicy = model.PresentationPolicy{
	Mode:      model.ModeBanner,
	Position:  "top",
	MaxAlerts: 5,
	Priority:  10,
}

// Options carries the static configuration of a Manager.
type Options struct {
	FHIRServer    string
	Policies      map[string]model.PresentationPolicy
	Events        map[string]string
	DebounceDelay time.Duration
}

// Manager is the CDS hook manager. One instance serves the whole host
// application; the host holds it explicitly instead of registering it on any
// ambient global.
type Manager struct {
	catalog       *catalog.Catalog
	executor      *executor.Executor
	fhirServer    string
	policies      map[string]model.PresentationPolicy
	events        map[string]string
	debounceDelay time.Duration
	obs           *observability.Observability
	logger        logger.Logger

	mu        sync.RWMutex
	lanes     map[string]*lane
	alerts    model.ActiveAlertSet
	listeners []Listener
}

func New(cat *catalog.Catalog, exec *executor.Executor, opts Options, obs *observability.Observability, log logger.Logger) *Manager {
	delay := opts.DebounceDelay
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	if obs == nil {
		obs = &observability.Observability{}
	}
	return &Manager{
		catalog:       cat,
		executor:      exec,
		fhirServer:    opts.FHIRServer,
		policies:      opts.Policies,
		events:        opts.Events,
		debounceDelay: delay,
		obs:           obs,
		logger:        log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		lanes:         make(map[string]*lane),
		alerts:        make(model.ActiveAlertSet),
	}
}

// RegisterListener adds a consumer for completed firings. Listeners are
// invoked synchronously after the alert set is replaced.
func (m *Manager) RegisterListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Fire runs one hook firing end to end. Consecutive calls with an identical
// semantic context are suppressed; the dedup key is recorded before any
// network call so concurrent re-entrant calls short-circuit too.
func (m *Manager) Fire(ctx context.Context, hookType string, tc model.TriggerContext) {
	start := time.Now()
	key := dedupKey(hookType, tc)
	ln := m.lane(hookType)

	ln.mu.Lock()
	if ln.lastDedupKey == key {
		ln.mu.Unlock()
		metrics.HookFiringsTotal.WithLabelValues(hookType, "deduped").Inc()
		m.obs.RecordFiring(ctx, hookType, "deduped")
		m.logger.Debug("duplicate firing suppressed", map[string]interface{}{
			"hookType":  hookType,
			"patientId": tc.PatientID,
		})
		return
	}
	ln.lastDedupKey = key
	ln.state = laneFiring
	ln.mu.Unlock()

	services := m.catalog.ByHookType(ctx, hookType)

	common := hookcontext.CommonFields{
		PatientID:   tc.PatientID,
		UserID:      tc.UserID,
		EncounterID: tc.EncounterID,
		FHIRServer:  m.fhirServer,
	}
	firedAt := time.Now()

	// Parallel fan-out; result slots are index-addressed so discovery order
	// is preserved without locking.
	results := make([][]model.Card, len(services))
	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc model.Service) {
			defer wg.Done()
			req, err := hookcontext.BuildForService(svc, common, tc.Fields, firedAt)
			if err != nil {
				m.logger.WithError(err).Warn("request build failed, skipping service", map[string]interface{}{
					"serviceId": svc.ID,
					"hookType":  hookType,
				})
				return
			}
			resp := m.executor.Execute(ctx, svc, req)
			results[i] = resp.Cards
		}(i, svc)
	}
	wg.Wait()

	flat := make([]model.Card, 0)
	for _, cards := range results {
		flat = append(flat, cards...)
	}

	grouped := groupCards(m.policyFor(hookType), flat)

	// A newer firing may have recorded a different dedup key while this one
	// was in flight; its result must not be overwritten with ours. The key
	// re-check and the alert replacement happen under the lane lock as one
	// step so a stale result can never land after a newer one has applied.
	ln.mu.Lock()
	if ln.lastDedupKey != key {
		ln.mu.Unlock()
		metrics.HookFiringsTotal.WithLabelValues(hookType, "stale").Inc()
		m.obs.RecordFiring(ctx, hookType, "stale")
		m.logger.Debug("stale firing discarded", map[string]interface{}{
			"hookType": hookType,
		})
		return
	}
	ln.state = laneSettled

	m.mu.Lock()
	m.alerts[hookType] = grouped
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	ln.mu.Unlock()

	for _, l := range listeners {
		l(hookType, flat)
	}

	duration := time.Since(start)
	metrics.HookFiringsTotal.WithLabelValues(hookType, "fired").Inc()
	metrics.HookFiringDuration.WithLabelValues(hookType).Observe(duration.Seconds())
	metrics.CardsReturned.WithLabelValues(hookType).Observe(float64(len(flat)))
	m.obs.RecordFiring(ctx, hookType, "fired")
	m.obs.RecordFiringDuration(ctx, duration, hookType)

	m.logger.Info("hook firing settled", map[string]interface{}{
		"hookType":     hookType,
		"patientId":    tc.PatientID,
		"serviceCount": len(services),
		"cardCount":    len(flat),
		"durationMs":   duration.Milliseconds(),
	})
}

// FireDebounced coalesces triggers arriving in quick succession (e.g.
// keystrokes building an order draft): each call cancels the pending timer
// for the lane and reschedules with the latest context.
func (m *Manager) FireDebounced(hookType string, tc model.TriggerContext, delay time.Duration) {
	if delay <= 0 {
		delay = m.debounceDelay
	}
	ln := m.lane(hookType)

	ln.mu.Lock()
	defer ln.mu.Unlock()
	if ln.timer != nil {
		ln.timer.Stop()
	}
	ln.state = laneDebouncing
	// The firing outlives the UI event that scheduled it, so it runs on a
	// fresh context.
	ln.timer = time.AfterFunc(delay, func() {
		m.Fire(context.Background(), hookType, tc)
	})
}

// TriggerByWorkflowEvent maps a high-level workflow event to its hook type
// and fires it. Unmapped events are a logged no-op, not an error.
func (m *Manager) TriggerByWorkflowEvent(ctx context.Context, event string, tc model.TriggerContext) {
	hookType, ok := m.events[event]
	if !ok {
		metrics.UnmappedEventsTotal.Inc()
		m.logger.WithError(cdserrors.NewUnmappedEventError(event)).Warn("no hook type mapped for workflow event", map[string]interface{}{
			"event": event,
		})
		return
	}
	m.Fire(ctx, hookType, tc)
}

// Convenience paths for the well-known hook types. Functionally identical to
// Fire; they only shape the trigger context.

func (m *Manager) FirePatientView(ctx context.Context, patientID, userID string) {
	m.Fire(ctx, model.HookPatientView, model.TriggerContext{PatientID: patientID, UserID: userID})
}

func (m *Manager) FireMedicationPrescribe(ctx context.Context, patientID, userID string, medications []interface{}) {
	m.Fire(ctx, model.HookMedicationPrescribe, model.TriggerContext{
		PatientID: patientID,
		UserID:    userID,
		Fields:    map[string]interface{}{"medications": medications},
	})
}

func (m *Manager) FireOrderSign(ctx context.Context, patientID, userID string, draftOrders interface{}) {
	m.Fire(ctx, model.HookOrderSign, model.TriggerContext{
		PatientID: patientID,
		UserID:    userID,
		Fields:    map[string]interface{}{"draftOrders": draftOrders},
	})
}

// Clear removes the active alerts for one hook type without affecting other
// lanes. The lane's dedup key is reset so the same context can repopulate a
// cleared lane.
func (m *Manager) Clear(hookType string) {
	m.mu.Lock()
	delete(m.alerts, hookType)
	m.mu.Unlock()

	ln := m.lane(hookType)
	ln.mu.Lock()
	ln.lastDedupKey = ""
	ln.state = laneIdle
	ln.mu.Unlock()
}

// GetActiveAlerts returns a read-only snapshot of the current alert set.
func (m *Manager) GetActiveAlerts() model.ActiveAlertSet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(model.ActiveAlertSet, len(m.alerts))
	for hookType, groups := range m.alerts {
		modeCopy := make(map[model.PresentationMode][]model.Card, len(groups))
		for mode, cards := range groups {
			cardsCopy := make([]model.Card, len(cards))
			copy(cardsCopy, cards)
			modeCopy[mode] = cardsCopy
		}
		snapshot[hookType] = modeCopy
	}
	return snapshot
}

func (m *Manager) lane(hookType string) *lane {
	m.mu.Lock()
	defer m.mu.Unlock()
	ln, ok := m.lanes[hookType]
	if !ok {
		ln = &lane{state: laneIdle}
		m.lanes[hookType] = ln
	}
	return ln
}

func (m *Manager) policyFor(hookType string) model.PresentationPolicy {
	if policy, ok := m.policies[hookType]; ok {
		return policy
	}
	return defaultPolicy
}

// groupCards buckets the firing's cards under the policy's presentation mode
// and truncates to the policy's alert budget. Order within the bucket is
// service-then-response order, as aggregated by the fan-out.
func groupCards(policy model.PresentationPolicy, cards []model.Card) map[model.PresentationMode][]model.Card {
	grouped := make(map[model.PresentationMode][]model.Card)
	if len(cards) == 0 {
		return grouped
	}

	limit := len(cards)
	if policy.MaxAlerts > 0 && policy.MaxAlerts < limit {
		limit = policy.MaxAlerts
	}

	bucket := make([]model.Card, limit)
	copy(bucket, cards[:limit])
	grouped[policy.Mode] = bucket
	return grouped
}

func dedupKey(hookType string, tc model.TriggerContext) string {
	return hookType + "|" + tc.PatientID + "|" + tc.Canonical()
}

// Package audit records completed hook firings in Elasticsearch for later
// review. Writes are best effort; an unreachable cluster never affects the
// firing that produced the record.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cds-orchestrator/internal/cds/model"
	"cds-orchestrator/internal/common/database"
	"cds-orchestrator/internal/common/logger"
)

// DefaultIndex is the Elasticsearch index firings are written to.
const DefaultIndex = "cds-hook-firings"

const indexTimeout = 5 * time.Second

// firingDocument is one indexed record per completed firing.
type firingDocument struct {
	HookType       string         `json:"hookType"`
	CardCount      int            `json:"cardCount"`
	IndicatorCount map[string]int `json:"indicatorCount"`
	ServiceIDs     []string       `json:"serviceIds"`
	Timestamp      string         `json:"@timestamp"`
}

type Recorder struct {
	es     *database.ElasticsearchClient
	index  string
	logger logger.Logger
	now    func() time.Time
}

func NewRecorder(es *database.ElasticsearchClient, index string, log logger.Logger) *Recorder {
	if index == "" {
		index = DefaultIndex
	}
	return &Recorder{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
		now:    time.Now,
	}
}

// Listener adapts the recorder to the orchestrator's listener signature.
func (r *Recorder) Listener() func(hookType string, cards []model.Card) {
	return func(hookType string, cards []model.Card) {
		r.Record(context.Background(), hookType, cards)
	}
}

// Record indexes one firing. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, hookType string, cards []model.Card) {
	doc := buildDocument(hookType, cards, r.now())

	body, err := json.Marshal(doc)
	if err != nil {
		r.logger.WithError(err).Warn("audit document marshal failed", map[string]interface{}{
			"hookType": hookType,
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	res, err := r.es.Client.Index(
		r.index,
		bytes.NewReader(body),
		r.es.Client.Index.WithContext(ctx),
	)
	if err != nil {
		r.logger.WithError(err).Warn("audit write failed, dropping record", map[string]interface{}{
			"hookType": hookType,
			"index":    r.index,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logger.WithError(fmt.Errorf("index returned %s", res.Status())).Warn("audit write rejected, dropping record", map[string]interface{}{
			"hookType": hookType,
			"index":    r.index,
		})
		return
	}

	r.logger.Debug("firing audited", map[string]interface{}{
		"hookType":  hookType,
		"cardCount": doc.CardCount,
	})
}

func buildDocument(hookType string, cards []model.Card, at time.Time) firingDocument {
	indicators := make(map[string]int)
	serviceIDs := make([]string, 0, len(cards))
	seen := make(map[string]bool)

	for _, card := range cards {
		indicators[string(card.Indicator)]++
		if card.OriginServiceID != "" && !seen[card.OriginServiceID] {
			seen[card.OriginServiceID] = true
			serviceIDs = append(serviceIDs, card.OriginServiceID)
		}
	}

	return firingDocument{
		HookType:       hookType,
		CardCount:      len(cards),
		IndicatorCount: indicators,
		ServiceIDs:     serviceIDs,
		Timestamp:      at.UTC().Format(time.RFC3339),
	}
}

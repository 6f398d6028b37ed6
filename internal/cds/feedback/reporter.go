// Package feedback reports card outcomes back to the originating service.
// Submissions are telemetry, not transactions: a failed post is logged and
// dropped, never retried and never surfaced to the caller.
package feedback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cds-orchestrator/internal/cds/model"
	cdserrors "cds-orchestrator/internal/common/errors"
	"cds-orchestrator/internal/common/httpclient"
	"cds-orchestrator/internal/common/logger"
	"cds-orchestrator/internal/common/metrics"
)

// DefaultTimeout bounds a feedback post so a slow service cannot stall the
// user interaction that produced the outcome.
const DefaultTimeout = 3 * time.Second

// User actions reported against a card.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

type Reporter struct {
	baseURL   string
	authToken string
	timeout   time.Duration
	client    *httpclient.Client
	logger    logger.Logger
	now       func() time.Time
}

func New(baseURL, authToken string, timeout time.Duration, client *httpclient.Client, log logger.Logger) *Reporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reporter{
		baseURL:   baseURL,
		authToken: authToken,
		timeout:   timeout,
		client:    client,
		logger:    log.WithFields(map[string]interface{}{"component": "feedback"}),
		now:       time.Now,
	}
}

// Report posts the outcome of a user action on a card to the card's
// originating service. Cards with no known origin are skipped silently; there
// is nowhere to send their feedback.
func (r *Reporter) Report(ctx context.Context, card model.Card, action string, suggestion *model.Suggestion) {
	if card.OriginServiceID == "" || card.OriginServiceID == model.OriginUnknown {
		r.logger.Debug("feedback skipped for card without origin", map[string]interface{}{
			"cardUuid": card.UUID,
		})
		return
	}

	fb := r.buildFeedback(card, action, suggestion)

	if err := r.post(ctx, card.OriginServiceID, model.FeedbackEnvelope{Feedback: []model.Feedback{fb}}); err != nil {
		metrics.FeedbackTotal.WithLabelValues(string(fb.Outcome), "error").Inc()
		r.logger.WithError(err).Warn("feedback submission failed, dropping", map[string]interface{}{
			"serviceId": card.OriginServiceID,
			"cardUuid":  card.UUID,
			"outcome":   string(fb.Outcome),
		})
		return
	}

	metrics.FeedbackTotal.WithLabelValues(string(fb.Outcome), "success").Inc()
	r.logger.Debug("feedback submitted", map[string]interface{}{
		"serviceId": card.OriginServiceID,
		"cardUuid":  card.UUID,
		"outcome":   string(fb.Outcome),
	})
}

// ReportAccepted and ReportRejected are shorthands for the two explicit user
// actions; every other interaction counts as ignored.

func (r *Reporter) ReportAccepted(ctx context.Context, card model.Card, suggestion *model.Suggestion) {
	r.Report(ctx, card, ActionAccept, suggestion)
}

func (r *Reporter) ReportRejected(ctx context.Context, card model.Card) {
	r.Report(ctx, card, ActionReject, nil)
}

func (r *Reporter) buildFeedback(card model.Card, action string, suggestion *model.Suggestion) model.Feedback {
	fb := model.Feedback{
		Card:             card.UUID,
		OutcomeTimestamp: r.now().UTC().Format(time.RFC3339),
	}

	switch action {
	case ActionAccept:
		fb.Outcome = model.OutcomeAccepted
		if suggestion != nil && suggestion.UUID != "" {
			fb.AcceptedSuggestions = []model.AcceptedSuggestion{{ID: suggestion.UUID}}
		}
	case ActionReject:
		fb.Outcome = model.OutcomeOverridden
		fb.OverrideReason = &model.OverrideReason{Reason: "user-dismissed"}
	default:
		fb.Outcome = model.OutcomeIgnored
	}
	return fb
}

func (r *Reporter) post(ctx context.Context, serviceID string, envelope model.FeedbackEnvelope) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	url := r.baseURL + "/cds-services/" + serviceID + "/feedback"
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, url, r.authToken, envelope)
	if err != nil {
		return cdserrors.NewFeedbackFailedError(serviceID, err)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return cdserrors.NewFeedbackFailedError(serviceID, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusMultipleChoices {
		return cdserrors.NewFeedbackFailedError(serviceID, fmt.Errorf("unexpected status %d", res.StatusCode))
	}
	return nil
}

// Package model holds the wire and in-memory types shared by the CDS Hooks
// client stack: discovered services, hook requests, advisory cards, feedback
// records, and presentation policies.
package model

import "encoding/json"

// Well-known hook types.
const (
	HookPatientView         = "patient-view"
	HookMedicationPrescribe = "medication-prescribe"
	HookOrderSign           = "order-sign"
	HookOrderSelect         = "order-select"
	HookEncounterStart      = "encounter-start"
	HookEncounterDischarge  = "encounter-discharge"
)

// OriginUnknown is the sentinel origin for cards whose producing service
// could not be determined. Feedback for such cards is never sent.
const OriginUnknown = "unknown"

// Service is one decision-support service from the discovery document.
// Immutable once fetched; replaced wholesale on catalog refresh.
type Service struct {
	ID          string            `json:"id"`
	Hook        string            `json:"hook"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Prefetch    map[string]string `json:"prefetch,omitempty"`
}

// DiscoveryResponse is the body of GET /cds-services.
type DiscoveryResponse struct {
	Services []Service `json:"services"`
}

// HookRequest is the body of POST /cds-services/{id}. Constructed fresh per
// firing; HookInstance differs even for identical semantic context.
type HookRequest struct {
	Hook         string                 `json:"hook"`
	HookInstance string                 `json:"hookInstance"`
	FHIRServer   string                 `json:"fhirServer,omitempty"`
	Context      map[string]interface{} `json:"context"`
	Prefetch     map[string]string      `json:"prefetch,omitempty"`
}

type Source struct {
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type Action struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Resource    map[string]interface{} `json:"resource,omitempty"`
}

// Suggestion is owned by exactly one Card.
type Suggestion struct {
	UUID    string   `json:"uuid,omitempty"`
	Label   string   `json:"label"`
	Actions []Action `json:"actions,omitempty"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
}

// Indicator is the urgency of a card.
type Indicator string

const (
	IndicatorInfo     Indicator = "info"
	IndicatorWarning  Indicator = "warning"
	IndicatorCritical Indicator = "critical"
)

// Card is one advisory returned by a service. The origin fields are stamped
// by the executor, not sent by the service. Immutable after creation; lives
// until its hook type's alerts are cleared or replaced by a newer firing.
type Card struct {
	UUID               string       `json:"uuid,omitempty"`
	Summary            string       `json:"summary"`
	Detail             string       `json:"detail,omitempty"`
	Indicator          Indicator    `json:"indicator"`
	Source             Source       `json:"source"`
	Suggestions        []Suggestion `json:"suggestions,omitempty"`
	Links              []Link       `json:"links,omitempty"`
	OriginServiceID    string       `json:"originServiceId,omitempty"`
	OriginServiceTitle string       `json:"originServiceTitle,omitempty"`
}

// HookResponse is the parsed body of a per-service hook execution.
type HookResponse struct {
	Cards         []Card   `json:"cards"`
	SystemActions []Action `json:"systemActions,omitempty"`
}

// Outcome of a card from the user's perspective.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeOverridden Outcome = "overridden"
	OutcomeIgnored    Outcome = "ignored"
)

type AcceptedSuggestion struct {
	ID string `json:"id"`
}

type OverrideReason struct {
	Reason      string `json:"reason,omitempty"`
	UserComment string `json:"userComment,omitempty"`
}

// Feedback is the write-once outcome record posted back to the originating
// service. Fire-and-forget.
type Feedback struct {
	Card                string               `json:"card"`
	Outcome             Outcome              `json:"outcome"`
	AcceptedSuggestions []AcceptedSuggestion `json:"acceptedSuggestions,omitempty"`
	OverrideReason      *OverrideReason      `json:"overrideReason,omitempty"`
	OutcomeTimestamp    string               `json:"outcomeTimestamp"`
}

// FeedbackEnvelope is the body of POST /cds-services/{id}/feedback.
type FeedbackEnvelope struct {
	Feedback []Feedback `json:"feedback"`
}

// PresentationMode is how a card is surfaced to the user.
type PresentationMode string

const (
	ModeBanner  PresentationMode = "banner"
	ModeDialog  PresentationMode = "dialog"
	ModeToast   PresentationMode = "toast"
	ModeSidebar PresentationMode = "sidebar"
	ModeInline  PresentationMode = "inline"
)

// PresentationPolicy is static per-hook-type configuration, never mutated at
// runtime.
type PresentationPolicy struct {
	Mode      PresentationMode `json:"mode"`
	Position  string           `json:"position,omitempty"`
	AutoHide  bool             `json:"autoHide"`
	MaxAlerts int              `json:"maxAlerts"`
	Priority  int              `json:"priority"`
}

// ActiveAlertSet maps hook type -> presentation mode -> ordered cards.
// Rebuilt wholesale on every successful firing for a hook type.
type ActiveAlertSet map[string]map[PresentationMode][]Card

// TriggerContext carries the semantic context of one workflow trigger.
// Fields holds the hook-specific payload (medications, draftOrders, ...).
type TriggerContext struct {
	PatientID   string                 `json:"patientId"`
	UserID      string                 `json:"userId"`
	EncounterID string                 `json:"encounterId,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// Canonical returns a deterministic serialization of the trigger context,
// used for dedup keys and cache keys. Map keys marshal sorted, so identical
// contexts always serialize identically.
func (t TriggerContext) Canonical() string {
	data, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return string(data)
}

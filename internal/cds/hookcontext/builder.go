// Package hookcontext builds hook request bodies per hook type. Everything
// here is pure: no I/O, no mutable state, the fired-at time is an input.
package hookcontext

import (
	"strconv"
	"strings"
	"time"

	"cds-orchestrator/internal/cds/model"
	cdserrors "cds-orchestrator/internal/common/errors"
)

// CommonFields are the identity fields every hook request carries.
type CommonFields struct {
	PatientID   string
	UserID      string
	EncounterID string
	FHIRServer  string
}

// Build produces the request body for one service and one firing. The hook
// instance id embeds the fired-at timestamp so that two firings with an
// identical semantic context still get distinct instance ids.
//
// Known hook types enforce their required hook-specific fields; unknown or
// custom hook types pass the specific fields through verbatim.
func Build(hookType, serviceID string, common CommonFields, specific map[string]interface{}, firedAt time.Time) (model.HookRequest, error) {
	hookCtx := map[string]interface{}{
		"userId":    common.UserID,
		"patientId": common.PatientID,
	}
	if common.EncounterID != "" {
		hookCtx["encounterId"] = common.EncounterID
	}

	switch hookType {
	case model.HookPatientView:
		// Identity fields only.

	case model.HookMedicationPrescribe:
		if _, ok := specific["medications"]; !ok {
			return model.HookRequest{}, cdserrors.NewMissingContextFieldError(hookType, "medications")
		}
		mergeFields(hookCtx, specific)

	case model.HookOrderSign:
		if _, ok := specific["draftOrders"]; !ok {
			return model.HookRequest{}, cdserrors.NewMissingContextFieldError(hookType, "draftOrders")
		}
		mergeFields(hookCtx, specific)

	default:
		mergeFields(hookCtx, specific)
	}

	return model.HookRequest{
		Hook:         hookType,
		HookInstance: serviceID + "-" + strconv.FormatInt(firedAt.UnixMilli(), 10),
		FHIRServer:   common.FHIRServer,
		Context:      hookCtx,
	}, nil
}

// BuildForService builds the request for a discovered service, expanding its
// prefetch query templates against the common context fields.
func BuildForService(svc model.Service, common CommonFields, specific map[string]interface{}, firedAt time.Time) (model.HookRequest, error) {
	req, err := Build(svc.Hook, svc.ID, common, specific, firedAt)
	if err != nil {
		return model.HookRequest{}, err
	}
	req.Prefetch = ExpandPrefetch(svc.Prefetch, common)
	return req, nil
}

// ExpandPrefetch substitutes {{context.*}} placeholders in the service's
// prefetch query templates. Unknown placeholders are left untouched.
func ExpandPrefetch(templates map[string]string, common CommonFields) map[string]string {
	if len(templates) == 0 {
		return nil
	}

	replacer := strings.NewReplacer(
		"{{context.patientId}}", common.PatientID,
		"{{context.userId}}", common.UserID,
		"{{context.encounterId}}", common.EncounterID,
	)

	out := make(map[string]string, len(templates))
	for name, tmpl := range templates {
		out[name] = replacer.Replace(tmpl)
	}
	return out
}

func mergeFields(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}

package hookcontext

import (
	"testing"
	"time"

	"cds-orchestrator/internal/cds/model"
	cdserrors "cds-orchestrator/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var firedAt = time.UnixMilli(1700000000000)

func testCommon() CommonFields {
	return CommonFields{
		PatientID:   "p1",
		UserID:      "u1",
		EncounterID: "e1",
		FHIRServer:  "https://fhir.example.org",
	}
}

func TestBuild_PatientView(t *testing.T) {
	req, err := Build(model.HookPatientView, "pv-service", testCommon(), map[string]interface{}{"extra": "ignored"}, firedAt)
	require.NoError(t, err)

	assert.Equal(t, model.HookRequest{
		Hook:         "patient-view",
		HookInstance: "pv-service-1700000000000",
		FHIRServer:   "https://fhir.example.org",
		Context: map[string]interface{}{
			"userId":      "u1",
			"patientId":   "p1",
			"encounterId": "e1",
		},
	}, req)
}

func TestBuild_PatientView_NoEncounter(t *testing.T) {
	common := testCommon()
	common.EncounterID = ""

	req, err := Build(model.HookPatientView, "pv-service", common, nil, firedAt)
	require.NoError(t, err)
	assert.NotContains(t, req.Context, "encounterId")
}

func TestBuild_MedicationPrescribe(t *testing.T) {
	meds := []interface{}{map[string]interface{}{"code": "197361"}}

	req, err := Build(model.HookMedicationPrescribe, "med-svc", testCommon(), map[string]interface{}{"medications": meds}, firedAt)
	require.NoError(t, err)
	assert.Equal(t, meds, req.Context["medications"])
	assert.Equal(t, "med-svc-1700000000000", req.HookInstance)
}

func TestBuild_MedicationPrescribe_MissingMedications(t *testing.T) {
	_, err := Build(model.HookMedicationPrescribe, "med-svc", testCommon(), nil, firedAt)
	require.Error(t, err)

	stdErr, ok := err.(*cdserrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, cdserrors.ErrCodeMissingContextField, stdErr.Code)
}

func TestBuild_OrderSign_MissingDraftOrders(t *testing.T) {
	_, err := Build(model.HookOrderSign, "order-svc", testCommon(), map[string]interface{}{}, firedAt)
	require.Error(t, err)
}

func TestBuild_CustomHook_Passthrough(t *testing.T) {
	specific := map[string]interface{}{
		"appointments": []interface{}{"a1", "a2"},
		"taskContext":  map[string]interface{}{"status": "ready"},
	}

	req, err := Build("appointment-book", "appt-svc", testCommon(), specific, firedAt)
	require.NoError(t, err)
	assert.Equal(t, specific["appointments"], req.Context["appointments"])
	assert.Equal(t, specific["taskContext"], req.Context["taskContext"])
}

func TestBuild_DistinctInstanceForIdenticalContext(t *testing.T) {
	first, err := Build(model.HookPatientView, "svc", testCommon(), nil, firedAt)
	require.NoError(t, err)
	second, err := Build(model.HookPatientView, "svc", testCommon(), nil, firedAt.Add(time.Millisecond))
	require.NoError(t, err)

	assert.NotEqual(t, first.HookInstance, second.HookInstance)
	assert.Equal(t, first.Context, second.Context)
}

func TestBuildForService_ExpandsPrefetch(t *testing.T) {
	svc := model.Service{
		ID:   "pv-service",
		Hook: model.HookPatientView,
		Prefetch: map[string]string{
			"patient":    "Patient/{{context.patientId}}",
			"conditions": "Condition?patient={{context.patientId}}&clinical-status=active",
		},
	}

	req, err := BuildForService(svc, testCommon(), nil, firedAt)
	require.NoError(t, err)
	assert.Equal(t, "Patient/p1", req.Prefetch["patient"])
	assert.Equal(t, "Condition?patient=p1&clinical-status=active", req.Prefetch["conditions"])
}

func TestExpandPrefetch_UnknownPlaceholderUntouched(t *testing.T) {
	out := ExpandPrefetch(map[string]string{"obs": "Observation?subject={{context.subjectId}}"}, testCommon())
	assert.Equal(t, "Observation?subject={{context.subjectId}}", out["obs"])
}

func TestExpandPrefetch_Empty(t *testing.T) {
	assert.Nil(t, ExpandPrefetch(nil, testCommon()))
}

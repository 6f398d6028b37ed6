package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_SetCodeAndRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
	}{
		{"discovery failed", NewDiscoveryFailedError(fmt.Errorf("dial refused")), ErrCodeDiscoveryFailed, true},
		{"discovery invalid", NewDiscoveryInvalidError("services missing"), ErrCodeDiscoveryInvalid, false},
		{"execution failed", NewExecutionFailedError("svc-a", fmt.Errorf("status 500")), ErrCodeExecutionFailed, true},
		{"execution timeout", NewExecutionTimeoutError("svc-a"), ErrCodeExecutionTimeout, true},
		{"response invalid", NewResponseInvalidError("svc-a", "summary missing"), ErrCodeResponseInvalid, false},
		{"feedback failed", NewFeedbackFailedError("svc-a", fmt.Errorf("status 503")), ErrCodeFeedbackFailed, false},
		{"unmapped event", NewUnmappedEventError("coffee-break"), ErrCodeUnmappedEvent, false},
		{"missing context field", NewMissingContextFieldError("order-sign", "draftOrders"), ErrCodeMissingContextField, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.False(t, tt.err.Timestamp.IsZero())
			require.NotEmpty(t, tt.err.Error())
			assert.Contains(t, tt.err.Error(), string(tt.code))
		})
	}
}

func TestConstructors_CarryServiceMetadata(t *testing.T) {
	err := NewExecutionFailedError("svc-a", fmt.Errorf("status 500"))
	assert.Equal(t, "svc-a", err.Metadata["serviceId"])
	assert.Contains(t, err.Details, "status 500")
}

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 3, GetRetryCount(ErrCodeDiscoveryFailed))
	assert.Equal(t, 3, GetRetryCount(ErrCodeExecutionFailed))
	assert.Equal(t, 1, GetRetryCount(ErrCodeExecutionTimeout))
	assert.Equal(t, 0, GetRetryCount(ErrCodeResponseInvalid))
	assert.Equal(t, 0, GetRetryCount(ErrCodeFeedbackFailed))
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeDiscoveryFailed))
	assert.True(t, IsRetryableErrorCode(ErrCodeExecutionTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeDiscoveryInvalid))
	assert.False(t, IsRetryableErrorCode(ErrCodeUnmappedEvent))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "DISCOVERY", GetErrorCategory(ErrCodeDiscoveryFailed))
	assert.Equal(t, "DISCOVERY", GetErrorCategory(ErrCodeDiscoveryInvalid))
	assert.Equal(t, "EXECUTION", GetErrorCategory(ErrCodeExecutionFailed))
	assert.Equal(t, "EXECUTION", GetErrorCategory(ErrCodeResponseInvalid))
	assert.Equal(t, "FEEDBACK", GetErrorCategory(ErrCodeFeedbackFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeUnmappedEvent))
}

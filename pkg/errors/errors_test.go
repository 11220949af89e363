package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"homestream/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	cause := errors.New("original error")
	err := WrapError(cause, ErrCodeInternal, "wrapped error", http.StatusInternalServerError)

	assert.Equal(t, cause, err.Cause)
	assert.Contains(t, err.Error(), "original error")
	assert.ErrorIs(t, err, cause)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	err.WithContext("device_id", "camera-1").WithContext("count", 42)

	assert.Equal(t, "camera-1", err.Context["device_id"])
	assert.Equal(t, 42, err.Context["count"])
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{"device not found", domain.ErrDeviceNotFound, ErrCodeNotFound, http.StatusNotFound},
		{"not connected", domain.ErrNotConnected, ErrCodeNotConnected, http.StatusServiceUnavailable},
		{"client closed", domain.ErrClientClosed, ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromDomain(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantStatus, appErr.HTTPStatus)
			assert.ErrorIs(t, appErr, tt.err)
		})
	}

	assert.Nil(t, FromDomain(nil))
}

func TestFromDomain_WrappedInput(t *testing.T) {
	wrapped := fmt.Errorf("lookup failed: %w", domain.ErrDeviceNotFound)
	appErr := FromDomain(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrCodeNotFound, appErr.Code)
}

func TestGetAppError(t *testing.T) {
	base := NewNotFoundError("device")
	wrapped := fmt.Errorf("handler: %w", base)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
	assert.True(t, IsAppError(base))
	assert.False(t, IsAppError(errors.New("plain")))
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewInvalidInputError("bad").HTTPStatus)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("device").HTTPStatus)
	assert.Equal(t, http.StatusTooManyRequests, NewRateLimitError().HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, NewInternalError("boom").HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, NewServiceUnavailableError("down").HTTPStatus)
}

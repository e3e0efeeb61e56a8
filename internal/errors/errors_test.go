package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dustline/internal/types"
)

func TestCategorize(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Categorize(nil))
	})

	t.Run("wrapped categorized error is found", func(t *testing.T) {
		base := NewInvalidParameterError("depth", "must be between 1 and 20")
		wrapped := fmt.Errorf("validate: %w", base)

		got := Categorize(wrapped)
		require.NotNil(t, got)
		assert.Equal(t, CategoryValidation, got.Category)
		assert.Equal(t, http.StatusBadRequest, got.StatusCode)
	})

	t.Run("service error maps by code", func(t *testing.T) {
		got := Categorize(&types.ServiceError{Code: "NOT_FOUND", Message: "missing"})
		assert.Equal(t, CategoryNotFound, got.Category)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := Categorize(fmt.Errorf("boom"))
		assert.Equal(t, CategorySystem, got.Category)
		assert.Equal(t, "INTERNAL_ERROR", got.Code)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderRateLimitError("mempool")))
	assert.True(t, IsRetryable(NewProviderTimeoutError("mempool")))
	assert.True(t, IsRetryable(NewProviderError("mempool", fmt.Errorf("502"))))
	assert.False(t, IsRetryable(NewInvalidParameterError("depth", "bad")))
	assert.False(t, IsRetryable(NewNotFoundError("transaction", "ab")))
	assert.False(t, IsRetryable(nil))
}

func TestIsConfigurationError(t *testing.T) {
	assert.True(t, IsConfigurationError(NewInvalidParameterError("direction", "sideways")))
	assert.True(t, IsConfigurationError(fmt.Errorf("wrap: %w", NewInvalidAddressError("xyz"))))
	assert.False(t, IsConfigurationError(NewProviderError("arkham", nil)))
	assert.False(t, IsConfigurationError(fmt.Errorf("plain")))
}

func TestCategorizedError_Error(t *testing.T) {
	err := NewProviderError("walletexplorer", fmt.Errorf("connection reset"))
	assert.Contains(t, err.Error(), "PROVIDER_ERROR")
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorContains(t, err.Unwrap(), "connection reset")

	svc := err.ToServiceError()
	assert.Equal(t, "PROVIDER_ERROR", svc.Code)
}

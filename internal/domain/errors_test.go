package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, CategoryUnclassified},
		{"malformed", ErrMalformedScanRequest, CategoryMalformedScanRequest},
		{"auth", ErrDsxaAuth, CategoryDsxaAuthError},
		{"dsxa client", ErrDsxaClient, CategoryDsxaClientError},
		{"dsxa server", ErrDsxaServer, CategoryDsxaServerError},
		{"dsxa timeout", ErrDsxaTimeout, CategoryDsxaTimeoutError},
		{"connector connection", ErrConnectorConnection, CategoryConnectorConnection},
		{"connector client", ErrConnectorClient, CategoryConnectorClientError},
		{"connector server", ErrConnectorServer, CategoryConnectorServerError},
		{"queue dispatch", ErrQueueDispatch, CategoryQueueDispatchError},
		{"unknown", errors.New("boom"), CategoryUnclassified},
		{"wrapped", fmt.Errorf("op=x: %w", ErrDsxaTimeout), CategoryDsxaTimeoutError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Classify(c.err))
		})
	}
}

func TestErrorCategory_Retryable(t *testing.T) {
	assert.False(t, CategoryMalformedScanRequest.Retryable())
	assert.False(t, CategoryDsxaAuthError.Retryable())
	assert.False(t, CategoryUnclassified.Retryable())
	assert.True(t, CategoryDsxaServerError.Retryable())
	assert.True(t, CategoryConnectorConnection.Retryable())
	assert.True(t, CategoryQueueDispatchError.Retryable())
}

func TestErrorCategory_BackoffFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyConnector, CategoryConnectorConnection.BackoffFamilyOf())
	assert.Equal(t, FamilyConnector, CategoryConnectorClientError.BackoffFamilyOf())
	assert.Equal(t, FamilyConnector, CategoryConnectorServerError.BackoffFamilyOf())
	assert.Equal(t, FamilyDsxa, CategoryDsxaClientError.BackoffFamilyOf())
	assert.Equal(t, FamilyDsxa, CategoryDsxaTimeoutError.BackoffFamilyOf())
	assert.Equal(t, FamilyServerError, CategoryDsxaServerError.BackoffFamilyOf())
	assert.Equal(t, FamilyServerError, CategoryQueueDispatchError.BackoffFamilyOf())
	assert.Equal(t, FamilyServerError, CategoryUnclassified.BackoffFamilyOf())
}

// Package config defines retry and DLQ configuration.
package config

import (
	"time"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// ScanRequestRetryPolicy returns the retry policy for the scan-request
// worker: each of the three backoff families follows its
// WORKERS__*_RETRY_ENABLED toggle, bounded by ScanRequestMaxRetries.
func (c Config) ScanRequestRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		EnabledFamilies: map[domain.BackoffFamily]bool{
			domain.FamilyConnector:   c.WorkersConnectorRetryEnabled,
			domain.FamilyDsxa:        c.WorkersDsxaRetryEnabled,
			domain.FamilyServerError: c.WorkersServerErrorRetryEnabled,
		},
		BackoffBase: map[domain.BackoffFamily]time.Duration{
			domain.FamilyConnector:   c.ConnectorRetryBackoffBase,
			domain.FamilyDsxa:        c.DsxaRetryBackoffBase,
			domain.FamilyServerError: c.ServerErrorRetryBackoffBase,
		},
		MaxRetries: c.ScanRequestMaxRetries,
	}
}

// BatchRetryPolicy returns the batch worker's retry policy: spec.md §4.E
// states RETRY_GROUPS = none, so every family is disabled and MaxRetries is 0.
func (c Config) BatchRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		EnabledFamilies: map[domain.BackoffFamily]bool{},
		BackoffBase:     map[domain.BackoffFamily]time.Duration{},
		MaxRetries:      0,
	}
}

// DiannaRetryPolicy returns the DIANNA worker's retry policy: spec.md §4.F
// states RETRY_GROUPS = connector(), so only the connector family is enabled.
func (c Config) DiannaRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		EnabledFamilies: map[domain.BackoffFamily]bool{
			domain.FamilyConnector: c.WorkersConnectorRetryEnabled,
		},
		BackoffBase: map[domain.BackoffFamily]time.Duration{
			domain.FamilyConnector: c.ConnectorRetryBackoffBase,
		},
		MaxRetries: c.ScanRequestMaxRetries,
	}
}

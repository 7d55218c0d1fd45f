package domain

import "errors"

// Error taxonomy (sentinels). Workers classify a returned error against
// these via errors.Is before consulting the retry table in §7.
var (
	// ErrMalformedScanRequest is raised by schema validation failure. Never retried.
	ErrMalformedScanRequest = errors.New("malformed scan request")
	// ErrDsxaAuth is raised on 401/403 from the scanner. Never retried; sets the sticky flag.
	ErrDsxaAuth = errors.New("dsxa auth error")
	// ErrDsxaClient is raised on 4xx from the scanner.
	ErrDsxaClient = errors.New("dsxa client error")
	// ErrDsxaServer is raised on 5xx from the scanner, or an "initializing" verdict.
	ErrDsxaServer = errors.New("dsxa server error")
	// ErrDsxaTimeout is raised on scanner read/connect timeout.
	ErrDsxaTimeout = errors.New("dsxa timeout error")
	// ErrConnectorConnection is raised on DNS/refused/reset reading from the connector.
	ErrConnectorConnection = errors.New("connector connection error")
	// ErrConnectorClient is raised on 4xx from the connector.
	ErrConnectorClient = errors.New("connector client error")
	// ErrConnectorServer is raised on 5xx from the connector.
	ErrConnectorServer = errors.New("connector server error")
	// ErrQueueDispatch is raised when enqueueing a downstream task fails.
	ErrQueueDispatch = errors.New("queue dispatch error")
)

// ErrorCategory names one of the ten classification buckets: one per
// sentinel above, plus Unclassified.
type ErrorCategory string

// Error categories, matching spec.md §7's table exactly.
const (
	CategoryMalformedScanRequest  ErrorCategory = "MalformedScanRequest"
	CategoryDsxaAuthError         ErrorCategory = "DsxaAuthError"
	CategoryDsxaClientError       ErrorCategory = "DsxaClientError"
	CategoryDsxaServerError       ErrorCategory = "DsxaServerError"
	CategoryDsxaTimeoutError      ErrorCategory = "DsxaTimeoutError"
	CategoryConnectorConnection   ErrorCategory = "ConnectorConnectionError"
	CategoryConnectorClientError  ErrorCategory = "ConnectorClientError"
	CategoryConnectorServerError  ErrorCategory = "ConnectorServerError"
	CategoryQueueDispatchError    ErrorCategory = "QueueDispatchError"
	CategoryUnclassified          ErrorCategory = "Unclassified"
)

// BackoffFamily names one of the three backoff bases spec.md §4.C and §7 define.
type BackoffFamily string

// Backoff families.
const (
	FamilyConnector   BackoffFamily = "connector"
	FamilyDsxa        BackoffFamily = "dsxa"
	FamilyServerError BackoffFamily = "server_error"
)

// Classify maps an error to its category by walking errors.Is against the
// sentinel taxonomy. Unrecognized errors classify as Unclassified, which
// is never retried (direct to DLQ with the Go type name as the error class).
func Classify(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryUnclassified
	case errors.Is(err, ErrMalformedScanRequest):
		return CategoryMalformedScanRequest
	case errors.Is(err, ErrDsxaAuth):
		return CategoryDsxaAuthError
	case errors.Is(err, ErrDsxaClient):
		return CategoryDsxaClientError
	case errors.Is(err, ErrDsxaServer):
		return CategoryDsxaServerError
	case errors.Is(err, ErrDsxaTimeout):
		return CategoryDsxaTimeoutError
	case errors.Is(err, ErrConnectorConnection):
		return CategoryConnectorConnection
	case errors.Is(err, ErrConnectorClient):
		return CategoryConnectorClientError
	case errors.Is(err, ErrConnectorServer):
		return CategoryConnectorServerError
	case errors.Is(err, ErrQueueDispatch):
		return CategoryQueueDispatchError
	default:
		return CategoryUnclassified
	}
}

// BackoffFamilyOf returns the backoff family that a category's reschedule
// delay is computed from, per spec.md §7.
func (c ErrorCategory) BackoffFamilyOf() BackoffFamily {
	switch c {
	case CategoryConnectorConnection, CategoryConnectorClientError, CategoryConnectorServerError:
		return FamilyConnector
	case CategoryDsxaClientError, CategoryDsxaTimeoutError:
		return FamilyDsxa
	case CategoryDsxaServerError, CategoryQueueDispatchError:
		return FamilyServerError
	default:
		return FamilyServerError
	}
}

// Retryable reports whether the category is ever eligible for retry,
// independent of whether the owning worker has enabled its family or
// whether the retry budget is exhausted.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryMalformedScanRequest, CategoryDsxaAuthError, CategoryUnclassified:
		return false
	default:
		return true
	}
}

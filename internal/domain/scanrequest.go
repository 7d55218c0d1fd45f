package domain

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Connector is the descriptor embedded in a ScanRequest identifying the
// upstream agent that owns the file.
type Connector struct {
	UUID                   string `json:"uuid" validate:"required"`
	URL                    string `json:"url"`
	Name                   string `json:"name"`
	ItemAction             string `json:"item_action"`
	ItemActionMoveMetainfo string `json:"item_action_move_metainfo"`
}

// ScanRequest is the unit of work accepted by the scan-request worker.
//
// Invariant: at least one of Connector or ConnectorURL is non-empty,
// enforced by the package-level struct validation registered below rather
// than a plain field tag, since it spans two optional fields.
type ScanRequest struct {
	Location     string     `json:"location" validate:"required"`
	Metainfo     string     `json:"metainfo"`
	Connector    *Connector `json:"connector,omitempty" validate:"omitempty"`
	ConnectorURL string     `json:"connector_url,omitempty"`
	SizeInBytes  *int64     `json:"size_in_bytes,omitempty" validate:"omitempty,gt=0"`
	ScanJobID    *string    `json:"scan_job_id,omitempty"`
}

var (
	validatorOnce sync.Once
	requestValidator *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		requestValidator = validator.New()
		requestValidator.RegisterStructValidation(validateScanRequest, ScanRequest{})
	})
	return requestValidator
}

func validateScanRequest(sl validator.StructLevel) {
	r := sl.Current().Interface().(ScanRequest)
	hasConnector := r.Connector != nil && (r.Connector.URL != "" || r.Connector.UUID != "")
	hasConnectorURL := r.ConnectorURL != ""
	if !hasConnector && !hasConnectorURL {
		sl.ReportError(r.ConnectorURL, "ConnectorURL", "ConnectorURL", "connector_or_url_required", "")
	}
}

// Validate enforces the ScanRequest's field and struct-level invariants via
// go-playground/validator, returning ErrMalformedScanRequest wrapped with
// the validator's own field-error detail.
func (r ScanRequest) Validate() error {
	if err := getValidator().Struct(r); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrMalformedScanRequest)
	}
	return nil
}

// EffectiveConnectorURL returns the URL to read the file from, preferring
// the embedded connector descriptor's URL and falling back to ConnectorURL.
func (r ScanRequest) EffectiveConnectorURL() string {
	if r.Connector != nil && r.Connector.URL != "" {
		return r.Connector.URL
	}
	return r.ConnectorURL
}

// ConnectorName returns the display name used in scanner metadata, falling
// back to the connector UUID when no name is set.
func (r ScanRequest) ConnectorName() string {
	if r.Connector == nil {
		return ""
	}
	if r.Connector.Name != "" {
		return r.Connector.Name
	}
	return r.Connector.UUID
}

// ArgsFrom renders a ScanRequest into the generic Args map a Task carries
// across the wire, keyed "request" so every worker decodes it the same way.
func ArgsFrom(r ScanRequest) (map[string]any, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("op=ArgsFrom: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("op=ArgsFrom: %w", err)
	}
	return map[string]any{"request": m}, nil
}

// ArgsFromBatch renders a batch of ScanRequests plus an optional explicit
// batch size override into a Task's Args map.
func ArgsFromBatch(reqs []ScanRequest, batchSize *int) (map[string]any, error) {
	payload, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("op=ArgsFromBatch: %w", err)
	}
	var list []any
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, fmt.Errorf("op=ArgsFromBatch: %w", err)
	}
	args := map[string]any{"requests": list}
	if batchSize != nil {
		args["batch_size"] = *batchSize
	}
	return args, nil
}

// DecodeScanRequestBatch extracts the "requests" list and optional
// "batch_size" override from a Task's Args.
func DecodeScanRequestBatch(args map[string]any) ([]ScanRequest, *int, error) {
	raw, ok := args["requests"]
	if !ok {
		return nil, nil, fmt.Errorf("missing requests field: %w", ErrMalformedScanRequest)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedScanRequest, err)
	}
	var reqs []ScanRequest
	if err := json.Unmarshal(payload, &reqs); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedScanRequest, err)
	}
	var batchSize *int
	if v, ok := args["batch_size"]; ok {
		switch n := v.(type) {
		case float64:
			bs := int(n)
			batchSize = &bs
		case int:
			batchSize = &n
		}
	}
	return reqs, batchSize, nil
}

// DecodeScanRequest extracts the "request" field of a Task's Args back into
// a ScanRequest, round-tripping through JSON since Args values arrive as
// generic map[string]any after transport deserialization.
func DecodeScanRequest(args map[string]any) (ScanRequest, error) {
	raw, ok := args["request"]
	if !ok {
		return ScanRequest{}, fmt.Errorf("missing request field: %w", ErrMalformedScanRequest)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return ScanRequest{}, fmt.Errorf("%w: %v", ErrMalformedScanRequest, err)
	}
	var r ScanRequest
	if err := json.Unmarshal(payload, &r); err != nil {
		return ScanRequest{}, fmt.Errorf("%w: %v", ErrMalformedScanRequest, err)
	}
	return r, nil
}

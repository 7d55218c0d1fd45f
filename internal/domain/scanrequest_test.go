package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRequest_Validate(t *testing.T) {
	t.Run("valid with connector url", func(t *testing.T) {
		r := ScanRequest{Location: "/files/a.bin", ConnectorURL: "http://connector:8080"}
		assert.NoError(t, r.Validate())
	})

	t.Run("valid with connector descriptor", func(t *testing.T) {
		r := ScanRequest{Location: "/files/a.bin", Connector: &Connector{UUID: "conn-1", URL: "http://connector:8080"}}
		assert.NoError(t, r.Validate())
	})

	t.Run("missing location", func(t *testing.T) {
		r := ScanRequest{ConnectorURL: "http://connector:8080"}
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedScanRequest))
	})

	t.Run("neither connector nor connector_url", func(t *testing.T) {
		r := ScanRequest{Location: "/files/a.bin"}
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedScanRequest))
	})

	t.Run("negative size rejected", func(t *testing.T) {
		size := int64(-1)
		r := ScanRequest{Location: "/files/a.bin", ConnectorURL: "http://connector:8080", SizeInBytes: &size}
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedScanRequest))
	})
}

func TestScanRequest_EffectiveConnectorURL(t *testing.T) {
	r := ScanRequest{ConnectorURL: "http://fallback", Connector: &Connector{URL: "http://primary"}}
	assert.Equal(t, "http://primary", r.EffectiveConnectorURL())

	r2 := ScanRequest{ConnectorURL: "http://fallback"}
	assert.Equal(t, "http://fallback", r2.EffectiveConnectorURL())
}

func TestScanRequest_ConnectorName(t *testing.T) {
	assert.Equal(t, "", ScanRequest{}.ConnectorName())
	assert.Equal(t, "agent-uuid", ScanRequest{Connector: &Connector{UUID: "agent-uuid"}}.ConnectorName())
	assert.Equal(t, "agent-name", ScanRequest{Connector: &Connector{UUID: "agent-uuid", Name: "agent-name"}}.ConnectorName())
}

func TestArgsFrom_RoundTrip(t *testing.T) {
	size := int64(1024)
	orig := ScanRequest{
		Location:     "/files/a.bin",
		Metainfo:     "meta",
		ConnectorURL: "http://connector:8080",
		SizeInBytes:  &size,
	}
	args, err := ArgsFrom(orig)
	require.NoError(t, err)

	got, err := DecodeScanRequest(args)
	require.NoError(t, err)
	assert.Equal(t, orig.Location, got.Location)
	assert.Equal(t, orig.Metainfo, got.Metainfo)
	assert.Equal(t, orig.ConnectorURL, got.ConnectorURL)
	require.NotNil(t, got.SizeInBytes)
	assert.Equal(t, *orig.SizeInBytes, *got.SizeInBytes)
}

func TestDecodeScanRequest_MissingField(t *testing.T) {
	_, err := DecodeScanRequest(map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedScanRequest))
}

func TestArgsFromBatch_RoundTrip(t *testing.T) {
	reqs := []ScanRequest{
		{Location: "/a", ConnectorURL: "http://c"},
		{Location: "/b", ConnectorURL: "http://c"},
	}
	batchSize := 10
	args, err := ArgsFromBatch(reqs, &batchSize)
	require.NoError(t, err)

	got, gotBatchSize, err := DecodeScanRequestBatch(args)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/a", got[0].Location)
	assert.Equal(t, "/b", got[1].Location)
	require.NotNil(t, gotBatchSize)
	assert.Equal(t, 10, *gotBatchSize)
}

func TestDecodeScanRequestBatch_MissingField(t *testing.T) {
	_, _, err := DecodeScanRequestBatch(map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedScanRequest))
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdictValue(t *testing.T) {
	cases := map[string]VerdictValue{
		"Benign":          VerdictBenign,
		"malicious":       VerdictMalicious,
		" MALICIOUS ":     VerdictMalicious,
		"scanning":        VerdictNotScanned,
		"NotScanned":      VerdictNotScanned,
		"not_scanned":     VerdictNotScanned,
		"NonCompliant":    VerdictNonCompliant,
		"non_compliant":   VerdictNonCompliant,
		"garbage":         VerdictUnknown,
		"":                VerdictUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseVerdictValue(in), "input %q", in)
	}
}

func TestNewOversizeVerdict(t *testing.T) {
	v := NewOversizeVerdict("guid-1", 9999)
	assert.Equal(t, "guid-1", v.ScanGUID)
	assert.Equal(t, VerdictNonCompliant, v.Verdict)
	assert.Equal(t, ReasonFileSizeTooLarge, v.VerdictDetails.Reason)
	assert.Equal(t, int64(9999), v.FileInfo.FileSizeInBytes)
	assert.Equal(t, int64(-1), v.ScanDurationUS, "synthetic verdicts carry no real scan duration")
}

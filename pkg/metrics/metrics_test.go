package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/install-if-absent/pkg/metrics"
)

func TestPrometheusRecorder_RecordInstall(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder()

	tests := []struct {
		outcome  string
		duration time.Duration
	}{
		{outcome: "installed", duration: 120 * time.Millisecond},
		{outcome: "skipped", duration: 5 * time.Millisecond},
		{outcome: "skipped", duration: 7 * time.Millisecond},
		{outcome: "failed", duration: time.Second},
	}
	for _, tt := range tests {
		recorder.RecordInstall(tt.outcome, tt.duration)
	}

	want := `
# HELP install_if_absent_install_total Total number of conditional installs by outcome
# TYPE install_if_absent_install_total counter
install_if_absent_install_total{outcome="failed"} 1
install_if_absent_install_total{outcome="installed"} 1
install_if_absent_install_total{outcome="skipped"} 2
`
	err := testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(want), "install_if_absent_install_total")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(recorder.Registry(), "install_if_absent_install_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPrometheusRecorder_RecordRemoteRequest(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder()
	recorder.RecordRemoteRequest("central", "not_found", 30*time.Millisecond)
	recorder.RecordRemoteRequest("central", "found", 40*time.Millisecond)
	recorder.RecordRemoteRequest("internal", "error", 2*time.Second)

	want := `
# HELP install_if_absent_remote_request_total Total number of remote repository probes by result
# TYPE install_if_absent_remote_request_total counter
install_if_absent_remote_request_total{repository="central",result="found"} 1
install_if_absent_remote_request_total{repository="central",result="not_found"} 1
install_if_absent_remote_request_total{repository="internal",result="error"} 1
`
	err := testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(want), "install_if_absent_remote_request_total")
	require.NoError(t, err)
}

func TestPrometheusRecorder_WriteToTextfile(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder()
	recorder.RecordInstall("installed", time.Second)

	path := filepath.Join(t.TempDir(), "install-if-absent.prom")
	require.NoError(t, recorder.WriteToTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `install_if_absent_install_total{outcome="installed"} 1`)
	assert.Contains(t, string(b), `install_if_absent_install_duration_seconds_count{outcome="installed"} 1`)
}

func TestNop(t *testing.T) {
	var r metrics.Recorder = metrics.Nop{}
	r.RecordInstall("installed", time.Second)
	r.RecordRemoteRequest("central", "found", time.Second)
}

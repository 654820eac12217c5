// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordIngest(t *testing.T) {
	before := testutil.ToFloat64(IngestRecordsTotal)
	RecordIngest(10, 2, 1)
	require.Equal(t, before+10, testutil.ToFloat64(IngestRecordsTotal))
	require.GreaterOrEqual(t, testutil.ToFloat64(IngestFilesSkippedTotal), float64(2))
	require.GreaterOrEqual(t, testutil.ToFloat64(IngestErrorsTotal), float64(1))
}

func TestObserveStageDuration(t *testing.T) {
	before := testutil.CollectAndCount(PipelineStageDuration)
	ObserveStageDuration("test_observe_stage_duration_unique", 250*time.Millisecond)
	require.Equal(t, before+1, testutil.CollectAndCount(PipelineStageDuration))
}

func TestRecordRunStatus(t *testing.T) {
	before := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("completed"))
	RecordRunStatus("completed")
	require.Equal(t, before+1, testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("completed")))
}

func TestHandlerServesMetrics(t *testing.T) {
	RecordRunStatus("completed")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "odcspipeline_pipeline_runs_total")
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(AnalysisTransitions.WithLabelValues("completed"))
	RecordTransition("completed")
	require.Equal(t, before+1, testutil.ToFloat64(AnalysisTransitions.WithLabelValues("completed")))
}

func TestRecordRequest_UnmatchedRoute(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "unmatched", "404"))
	RecordRequest("GET", "", 404, 3*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestRecordInference(t *testing.T) {
	before := testutil.CollectAndCount(InferenceDuration)
	RecordInference("malformed-test", time.Second)
	require.Equal(t, before+1, testutil.CollectAndCount(InferenceDuration))
}

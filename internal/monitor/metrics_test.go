package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	metrics := NewMetrics()

	// Given: a few lifecycle observations
	metrics.IncOnlinePlayers()
	metrics.IncOnlinePlayers()
	metrics.DecOnlinePlayers()
	metrics.SetLiveSessions(3)
	metrics.ObserveTermination("completed", "win")
	metrics.ObserveTermination("completed", "win")
	metrics.IncRejectedInput("game:turn", "validation")
	metrics.ObserveMessageLatency(5 * time.Millisecond)

	// Then: the collectors hold them
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.OnlinePlayers), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.LiveSessions), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Terminations.WithLabelValues("completed", "win")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RejectedInputs.WithLabelValues("game:turn", "validation")), 0)

	// And: the handler exposes them
	recorder := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `caro_session_terminations_total{cause="win",phase="completed"} 2`)
	assert.Contains(t, string(body), "caro_message_latency_seconds_count 1")
}

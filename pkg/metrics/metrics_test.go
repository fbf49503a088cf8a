package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// none of these may panic
	m.Captured()
	m.Overflow()
	m.Sent(3)
	m.Received()
	m.Played()
	m.Discarded(2)
	m.PlaybackError()
	m.TurnCompleted()
	m.SessionStarted()
	m.SessionEnded(1.5, true)

	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestMetrics_Counters(t *testing.T) {
	is := is.New(t)
	m := New()

	m.Captured()
	m.Captured()
	m.Sent(5)
	m.Discarded(3)
	m.SessionStarted()

	is.Equal(testutil.ToFloat64(m.ChunksCaptured), 2.0)
	is.Equal(testutil.ToFloat64(m.ChunksSent), 1.0)
	is.Equal(testutil.ToFloat64(m.QueueLength), 5.0)
	is.Equal(testutil.ToFloat64(m.Interruptions), 1.0)
	is.Equal(testutil.ToFloat64(m.ChunksDiscarded), 3.0)
	is.Equal(testutil.ToFloat64(m.SessionActive), 1.0)

	m.SessionEnded(2, false)
	is.Equal(testutil.ToFloat64(m.SessionActive), 0.0)
	is.Equal(testutil.ToFloat64(m.SessionsFailed), 0.0)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Played()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lt_playback_chunks_total 1") {
		t.Errorf("metrics output missing playback counter:\n%s", rec.Body.String())
	}
}

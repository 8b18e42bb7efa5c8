package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(update).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

func TestMetrics_recorded(t *testing.T) {
	m := New()
	m.ObservePolicyFetch(nil)
	m.ObservePolicyFetch(errors.New("boom"))
	m.SegmentStarted()
	m.SegmentFinished("failed", "upload")
	m.ObserveUpload(1.5, 2048)
	m.AddSweptFiles(3)

	out := scrape(t, m, func() { m.SetActivePolicies(7) })

	for _, want := range []string{
		`recorder_policy_fetches_total{result="ok"} 1`,
		`recorder_policy_fetches_total{result="error"} 1`,
		`recorder_segments_total{outcome="failed"} 1`,
		`recorder_pipeline_failures_total{stage="upload"} 1`,
		`recorder_segments_inflight 0`,
		`recorder_upload_bytes_total 2048`,
		`recorder_swept_files_total 3`,
		`recorder_active_policies 7`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMetrics_nil_safe(t *testing.T) {
	var m *Metrics
	m.IncRequests()
	m.IncErrors()
	m.ObservePolicyFetch(nil)
	m.SetActivePolicies(1)
	m.SegmentStarted()
	m.SegmentFinished("uploaded", "")
	m.ObserveUpload(1, 1)
	m.AddSweptFiles(1)
	m.SetStorageUsedPercent(50)
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/bad", nil))

	out := scrape(t, m, nil)
	if !strings.Contains(out, "recorder_http_requests_total 2") {
		t.Error("expected 2 requests")
	}
	if !strings.Contains(out, "recorder_http_errors_total 1") {
		t.Error("expected 1 error")
	}
}

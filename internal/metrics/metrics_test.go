package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestRecordAuthEvent_CountsByEventAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthEvent("login", "success")
	c.RecordAuthEvent("login", "success")
	c.RecordAuthEvent("login", "failure")
	c.RecordAuthEvent("register", "conflict")

	mf := gather(t, reg, "snapsolve_auth_events_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "event")+"/"+labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}

	want := map[string]float64{"login/success": 2, "login/failure": 1, "register/conflict": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestRecordSolve_CountsOutcomeAndObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSolve("success", 1500*time.Millisecond)
	c.RecordSolve("timeout", 60*time.Second)

	mf := gather(t, reg, "snapsolve_solve_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 outcome labels, got %d", len(mf.GetMetric()))
	}

	hist := gather(t, reg, "snapsolve_provider_latency_seconds").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", hist.GetSampleCount())
	}
	if hist.GetSampleSum() != 61.5 {
		t.Errorf("sample sum = %v, want 61.5", hist.GetSampleSum())
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	mf := gather(t, reg, "snapsolve_http_responses_total")
	for _, m := range mf.GetMetric() {
		switch labelValue(m, "status_code") {
		case "200":
			if m.GetCounter().GetValue() != 2 {
				t.Errorf("200 count = %v, want 2", m.GetCounter().GetValue())
			}
		case "401":
			if m.GetCounter().GetValue() != 1 {
				t.Errorf("401 count = %v, want 1", m.GetCounter().GetValue())
			}
		default:
			t.Errorf("unexpected label %q", labelValue(m, "status_code"))
		}
	}
}

func TestRecordSessionsDeleted_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsDeleted(5)
	c.RecordSessionsDeleted(0)
	c.RecordSessionsDeleted(3)

	val := gather(t, reg, "snapsolve_sessions_deleted_total").GetMetric()[0].GetCounter().GetValue()
	if val != 8 {
		t.Errorf("sessions_deleted_total = %v, want 8", val)
	}
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthEvent("guest", "success")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `snapsolve_auth_events_total{event="guest",outcome="success"} 1`) {
		t.Errorf("response should contain auth event metric:\n%s", body)
	}
}

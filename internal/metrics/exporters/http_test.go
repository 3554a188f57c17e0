package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/nodewarden/internal/metrics"
)

func TestHTTPHandlerServesSupervisorMetrics(t *testing.T) {
	// Touch a gauge so the exposition is not empty
	metrics.SetInactivityCountdown(120)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text exposition format", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "nodewarden_supervisor_inactivity_countdown_seconds 120") {
		t.Errorf("exposition missing countdown gauge:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("exposition missing default process collectors")
	}
}

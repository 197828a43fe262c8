package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTransitions_Increment(t *testing.T) {
	c := Transitions().WithLabelValues("initiate", OutcomeOK)
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestOutcome(t *testing.T) {
	if Outcome(nil) != OutcomeOK {
		t.Error("nil error should be ok")
	}
	if Outcome(errors.New("x")) != OutcomeFailed {
		t.Error("non-nil error should be failed")
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	BadgesIssued().WithLabelValues("design").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "favored_badges_issued_total") {
		t.Error("expected badges counter in exposition")
	}
}

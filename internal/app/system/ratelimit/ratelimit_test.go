package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_WindowAndReset(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request should be refused")
	}
	if got := l.Remaining("a"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
	if !l.Allow("b") {
		t.Error("keys are independent")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("a") {
		t.Error("window should have expired")
	}

	l.Reset("a")
	if got := l.Remaining("a"); got != 2 {
		t.Errorf("Remaining after Reset = %d, want 2", got)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Errorf("RemoteAddr: got %q", got)
	}
	r.Header.Set("X-Real-IP", " 10.1.1.1 ")
	if got := ClientIP(r); got != "10.1.1.1" {
		t.Errorf("X-Real-IP: got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}

func TestJoinLimiter_PerApplicant(t *testing.T) {
	jl := NewJoinLimiterWithConfig(100, time.Minute, 1, time.Minute)
	defer jl.Stop()
	r := httptest.NewRequest("POST", "/", nil)

	if ok, _ := jl.Check(r, "Sam@Test.com"); !ok {
		t.Fatal("first request should pass")
	}
	ok, msg := jl.Check(r, "sam@test.com")
	if ok || msg == "" {
		t.Errorf("second request for same applicant: ok=%v msg=%q", ok, msg)
	}
	if ok, _ := jl.Check(r, "kim@test.com"); !ok {
		t.Error("other applicant should pass")
	}
}

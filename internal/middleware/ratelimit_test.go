package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGetIP_XForwardedFor_SingleIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "192.168.1.1")

	ip := getIP(req)
	if ip != "192.168.1.1" {
		t.Errorf("getIP() = %q, want %q", ip, "192.168.1.1")
	}
}

func TestGetIP_XForwardedFor_MultipleIPs(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "192.168.1.1, 10.0.0.1, 172.16.0.1")

	ip := getIP(req)
	if ip != "192.168.1.1" {
		t.Errorf("getIP() = %q, want %q (first IP only)", ip, "192.168.1.1")
	}
}

func TestGetIP_XForwardedFor_WithSpaces(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "  192.168.1.1  ,  10.0.0.1  ")

	ip := getIP(req)
	if ip != "192.168.1.1" {
		t.Errorf("getIP() = %q, want %q (trimmed)", ip, "192.168.1.1")
	}
}

func TestGetIP_XRealIP_WithSpaces(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "  192.168.1.1  ")

	ip := getIP(req)
	if ip != "192.168.1.1" {
		t.Errorf("getIP() = %q, want %q (trimmed)", ip, "192.168.1.1")
	}
}

func TestGetIP_RemoteAddrDropsPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	ip := getIP(req)
	if ip != "127.0.0.1" {
		t.Errorf("getIP() = %q, want %q", ip, "127.0.0.1")
	}
}

func TestGetIP_XForwardedForPriority(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "192.168.1.1")
	req.Header.Set("X-Real-IP", "10.0.0.1")
	req.RemoteAddr = "127.0.0.1:12345"

	ip := getIP(req)
	if ip != "192.168.1.1" {
		t.Errorf("getIP() = %q, want %q (X-Forwarded-For has priority)", ip, "192.168.1.1")
	}
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewRateLimiter(ctx, 1, 3).Limit(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewRateLimiter(ctx, 0.1, 2).Limit(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Got status %d, want %d (rate limited)", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header is missing")
	}
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewRateLimiter(ctx, 0.1, 1).Limit(okHandler())

	for _, addr := range []string{"192.168.1.1:12345", "192.168.1.2:12345"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s first request: got %d, want %d", addr, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 1, 1)
	rl.getVisitor("10.0.0.1")

	rl.evictIdle(time.Now().Add(time.Minute))
	if len(rl.visitors) != 1 {
		t.Fatalf("visitors = %d, want 1 before idle timeout", len(rl.visitors))
	}

	rl.evictIdle(time.Now().Add(5 * time.Minute))
	if len(rl.visitors) != 0 {
		t.Errorf("visitors = %d, want 0 after idle timeout", len(rl.visitors))
	}
}

func TestLimitPresets_Create(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for name, mw := range map[string]func(http.Handler) http.Handler{
		"strict": LimitStrict(ctx),
		"api":    LimitAPI(ctx),
	} {
		req := httptest.NewRequest("GET", "/api/summary", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: got status %d, want %d", name, rec.Code, http.StatusOK)
		}
	}
}

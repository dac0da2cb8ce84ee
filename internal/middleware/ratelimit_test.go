package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := rl.Handler(next)

	call := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/opportunities", nil)
		if userID != "" {
			req.Header.Set("X-User-ID", userID)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst of 2, then the bucket is empty.
	if code := call("a"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := call("a"); code != http.StatusOK {
		t.Fatalf("second request: %d", code)
	}
	if code := call("a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	// Another client has its own bucket.
	if code := call("b"); code != http.StatusOK {
		t.Fatalf("other client: %d", code)
	}
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/crypto"
	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var fixedNow = time.Unix(1_700_000_000, 0)

type downLocks struct{}

func (downLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("connection refused")
}

func echoCaller(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok {
			t.Error("caller missing from context")
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte(caller.Hex() + "|" + string(body)))
	})
}

func signedRequest(t *testing.T, body string, at time.Time) *http.Request {
	t.Helper()
	s, err := crypto.NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/predictions", strings.NewReader(body))
	if err := s.Authorize(req, []byte(body), at); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestSignatureAuthAcceptsValidSignature(t *testing.T) {
	h := SignatureAuth(AuthConfig{Now: func() time.Time { return fixedNow }})(echoCaller(t))
	req := signedRequest(t, `{"a":1}`, fixedNow)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	want := req.Header.Get(crypto.HeaderAddress) + `|{"a":1}`
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body, want)
	}
}

func TestSignatureAuthRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *http.Request) *http.Request
	}{
		{"missing headers", func(r *http.Request) *http.Request {
			r.Header.Del(crypto.HeaderSignature)
			return r
		}},
		{"other address", func(r *http.Request) *http.Request {
			r.Header.Set(crypto.HeaderAddress, common.HexToAddress("0x1").Hex())
			return r
		}},
		{"tampered body", func(r *http.Request) *http.Request {
			r.Body = io.NopCloser(strings.NewReader(`{"a":2}`))
			return r
		}},
		{"bad timestamp", func(r *http.Request) *http.Request {
			r.Header.Set(crypto.HeaderTimestamp, "soon")
			return r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := SignatureAuth(AuthConfig{Now: func() time.Time { return fixedNow }})(echoCaller(t))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.mutate(signedRequest(t, `{"a":1}`, fixedNow)))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestSignatureAuthSkew(t *testing.T) {
	cfg := AuthConfig{MaxSkew: time.Minute, Now: func() time.Time { return fixedNow }}
	h := SignatureAuth(cfg)(echoCaller(t))
	for _, at := range []time.Time{fixedNow.Add(-2 * time.Minute), fixedNow.Add(2 * time.Minute)} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, "{}", at))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("signed at %v: status = %d, want 401", at, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "{}", fixedNow.Add(-30*time.Second)))
	if rec.Code != http.StatusOK {
		t.Fatalf("within skew: status = %d", rec.Code)
	}
}

func TestSignatureAuthRejectsReusedSignature(t *testing.T) {
	// No Replay configured: the in-process guard applies.
	h := SignatureAuth(AuthConfig{
		MaxSkew: time.Minute,
		Now:     func() time.Time { return fixedNow },
	})(echoCaller(t))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, signedRequest(t, `{"a":1}`, fixedNow))
	if first.Code != http.StatusOK {
		t.Fatalf("first: status = %d", first.Code)
	}

	// Byte-identical resend carries the same signature.
	again := httptest.NewRecorder()
	h.ServeHTTP(again, signedRequest(t, `{"a":1}`, fixedNow))
	if again.Code != http.StatusUnauthorized {
		t.Fatalf("resend: status = %d, want 401", again.Code)
	}
	if !strings.Contains(again.Body.String(), "signature already used") {
		t.Errorf("resend body = %q", again.Body.String())
	}

	// A fresh signature from the same caller still goes through.
	other := httptest.NewRecorder()
	h.ServeHTTP(other, signedRequest(t, `{"a":1}`, fixedNow.Add(time.Second)))
	if other.Code != http.StatusOK {
		t.Fatalf("new timestamp: status = %d", other.Code)
	}
}

func TestSignatureAuthReplayStoreDown(t *testing.T) {
	h := SignatureAuth(AuthConfig{
		Now:    func() time.Time { return fixedNow },
		Replay: downLocks{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})(echoCaller(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "{}", fixedNow))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestLocalLocks(t *testing.T) {
	now := fixedNow
	l := NewLocalLocks(func() time.Time { return now })
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "sig:a", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "sig:a", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire: err = %v, want ErrLockHeld", err)
	}
	unlockB, err := l.Acquire(ctx, "sig:b", time.Minute)
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	unlockB()
	if _, err := l.Acquire(ctx, "sig:b", time.Minute); err != nil {
		t.Fatalf("after release: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := l.Acquire(ctx, "sig:a", time.Minute); err != nil {
		t.Fatalf("after ttl: %v", err)
	}
}

func TestLocalLocksSweepsExpired(t *testing.T) {
	now := fixedNow
	l := NewLocalLocks(func() time.Time { return now })
	ctx := context.Background()
	for i := 0; i < sweepEvery-1; i++ {
		if _, err := l.Acquire(ctx, fmt.Sprintf("k%d", i), time.Second); err != nil {
			t.Fatal(err)
		}
	}
	now = now.Add(time.Hour)
	if _, err := l.Acquire(ctx, "last", time.Second); err != nil {
		t.Fatal(err)
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("tracked keys = %d, want 1", got)
	}
}

func TestRequireOwner(t *testing.T) {
	owner := common.HexToAddress("0xaaaa")
	h := RequireOwner(func() common.Address { return owner })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		ctx    context.Context
		status int
	}{
		{"unsigned", context.Background(), http.StatusUnauthorized},
		{"stranger", WithCaller(context.Background(), common.HexToAddress("0xbbbb")), http.StatusForbidden},
		{"owner", WithCaller(context.Background(), owner), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/admin/settings", nil).WithContext(tt.ctx)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestRateLimitLocal(t *testing.T) {
	h := RateLimit(NewLocalLimiter(0, 0), 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

type recordingObserver struct {
	route  string
	status int
}

func (o *recordingObserver) ObserveHTTP(route, _ string, status int, _ time.Duration) {
	o.route, o.status = route, status
}

func TestLoggingObservesMatchedRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	obs := &recordingObserver{}
	h := Logging(slog.New(slog.NewTextHandler(io.Discard, nil)), obs)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/markets/7", nil))
	if obs.route != "GET /api/markets/{id}" || obs.status != http.StatusTeapot {
		t.Fatalf("observed %q %d", obs.route, obs.status)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/predictions", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature) {
		t.Fatalf("allow headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

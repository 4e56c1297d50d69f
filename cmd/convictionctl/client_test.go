package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignedCallVerifies(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, _ := strconv.ParseInt(r.Header.Get(crypto.HeaderTimestamp), 10, 64)
		addr, err := crypto.RecoverRequestSigner(r.Method, r.URL.Path, ts, body, r.Header.Get(crypto.HeaderSignature))
		if err != nil || addr != signer.Address() {
			http.Error(w, `{"error":"bad signature","code":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"position_id":7}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := newAPIClient(srv.URL+"/", &out)
	c.signer = signer
	c.now = func() time.Time { return now }

	if err := c.print(context.Background(), http.MethodPost, "/api/predictions", map[string]any{"market_id": 1}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(out.String(), `"position_id": 7`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestCallDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"engine: already predicted","code":"already_predicted"}`))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, io.Discard)
	err := c.call(context.Background(), http.MethodGet, "/api/markets/1", nil, nil)

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "already_predicted" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2026-02-01T00:00:00Z", want: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{in: "24h", want: now.Add(24 * time.Hour)},
		{in: "", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "tomorrow", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseExpiry(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

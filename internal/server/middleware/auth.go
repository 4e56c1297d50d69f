package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/crypto"
	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const maxSignedBody = 1 << 20

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller address.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// AuthConfig configures SignatureAuth.
type AuthConfig struct {
	// MaxSkew bounds how far the signed timestamp may be from now.
	MaxSkew time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// Replay rejects a signature seen within 2*MaxSkew. Nil uses an
	// in-process LocalLocks.
	Replay domain.LockManager
	Logger *slog.Logger
}

// SignatureAuth authenticates a request by the secp256k1 signature over its
// method, path, timestamp and body digest. The recovered signer must match
// the claimed address header; on success the address is stored as the
// request's caller.
func SignatureAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Replay == nil {
		cfg.Replay = NewLocalLocks(cfg.Now)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claimed := r.Header.Get(crypto.HeaderAddress)
			sig := r.Header.Get(crypto.HeaderSignature)
			tsRaw := r.Header.Get(crypto.HeaderTimestamp)
			if claimed == "" || sig == "" || tsRaw == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}
			if !common.IsHexAddress(claimed) {
				writeUnauthorized(w, "invalid address header")
				return
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp header")
				return
			}
			skew := cfg.Now().Sub(time.Unix(ts, 0))
			if skew < -cfg.MaxSkew || skew > cfg.MaxSkew {
				writeUnauthorized(w, "timestamp outside allowed window")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := crypto.RecoverRequestSigner(r.Method, r.URL.Path, ts, body, sig)
			if err != nil || signer != common.HexToAddress(claimed) {
				writeUnauthorized(w, "signature does not match address")
				return
			}

			if _, err := cfg.Replay.Acquire(r.Context(), "sig:"+sig, 2*cfg.MaxSkew); err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					writeUnauthorized(w, "signature already used")
					return
				}
				cfg.Logger.ErrorContext(r.Context(), "auth: replay guard",
					slog.String("error", err.Error()),
				)
				writeStatus(w, http.StatusServiceUnavailable, "replay guard unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), signer)))
		})
	}
}

// RequireOwner rejects callers other than the address owner returns. It
// must run after SignatureAuth.
func RequireOwner(owner func() common.Address) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFrom(r.Context())
			if !ok {
				writeUnauthorized(w, "unsigned request")
				return
			}
			if caller != owner() {
				writeStatus(w, http.StatusForbidden, "caller is not the owner")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeStatus(w, http.StatusUnauthorized, msg)
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

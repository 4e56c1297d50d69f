package crypto

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecover(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	if err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"market_id":1}`)
	sig, err := s.SignRequest("post", "/api/predictions", 1700000000, body)
	if err != nil {
		t.Fatal(err)
	}

	got, err := RecoverRequestSigner("POST", "/api/predictions", 1700000000, body, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}

	tampered := []struct {
		name   string
		method string
		path   string
		ts     int64
		body   []byte
	}{
		{"method", "PUT", "/api/predictions", 1700000000, body},
		{"path", "POST", "/api/positions/1/claim", 1700000000, body},
		{"timestamp", "POST", "/api/predictions", 1700000001, body},
		{"body", "POST", "/api/predictions", 1700000000, []byte(`{"market_id":2}`)},
	}
	for _, tt := range tampered {
		t.Run(tt.name, func(t *testing.T) {
			other, err := RecoverRequestSigner(tt.method, tt.path, tt.ts, tt.body, sig)
			if err == nil && other == s.Address() {
				t.Fatal("tampered request recovered the signer")
			}
		})
	}
}

func TestRecoverRejectsMalformed(t *testing.T) {
	for _, sig := range []string{"", "0x1234", "zz", "0x" + strings.Repeat("00", 65)} {
		if _, err := RecoverRequestSigner("GET", "/", 0, nil, sig); err == nil {
			t.Errorf("signature %q accepted", sig)
		}
	}
}

func TestRequestMessage(t *testing.T) {
	got := string(RequestMessage("post", "/x", 5, nil))
	want := "POST\n/x\n5\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("message = %q", got)
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	data, err := encryptKey(testKey, "hunter2", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), testKey) {
		t.Fatal("key file contains the plaintext key")
	}

	if _, err := DecryptKey(data, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}

	path := filepath.Join(t.TempDir(), "operator.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSigner(KeySource{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	pk, _ := ethcrypto.HexToECDSA(testKey)
	if s.Address() != ethcrypto.PubkeyToAddress(pk.PublicKey) {
		t.Fatalf("address = %s", s.Address().Hex())
	}
}

func TestLoadSignerSources(t *testing.T) {
	if _, err := LoadSigner(KeySource{}); err == nil {
		t.Fatal("expected error without a source")
	}
	if _, err := LoadSigner(KeySource{RawPrivateKey: "not-hex"}); err == nil {
		t.Fatal("expected error for bad raw key")
	}
	if _, err := encryptKey(testKey, "", 1000); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestAuthorizeSetsHeaders(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"market_id":1}`)
	req, _ := http.NewRequest(http.MethodPost, "http://localhost/api/predictions?x=1", nil)
	now := time.Unix(1_700_000_000, 0)
	if err := s.Authorize(req, body, now); err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get(HeaderTimestamp); got != "1700000000" {
		t.Fatalf("timestamp header = %q", got)
	}
	addr, err := RecoverRequestSigner(http.MethodPost, "/api/predictions", now.Unix(), body, req.Header.Get(HeaderSignature))
	if err != nil {
		t.Fatal(err)
	}
	if addr != s.Address() || req.Header.Get(HeaderAddress) != s.Address().Hex() {
		t.Fatalf("recovered %s, want %s", addr.Hex(), s.Address().Hex())
	}
}

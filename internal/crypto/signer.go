package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Request headers carrying a signed API call.
const (
	HeaderAddress   = "X-Conviction-Address"
	HeaderTimestamp = "X-Conviction-Timestamp"
	HeaderSignature = "X-Conviction-Signature"
)

// ErrBadSignature is returned when a signature cannot be decoded or does
// not recover to a public key.
var ErrBadSignature = errors.New("crypto: bad signature")

// RequestMessage is the text a client signs for one API call:
//
//	METHOD\nPATH\nTIMESTAMP\nhex(sha256(body))
func RequestMessage(method, path string, timestamp int64, body []byte) []byte {
	sum := sha256.Sum256(body)
	return fmt.Appendf(nil, "%s\n%s\n%d\n%s", strings.ToUpper(method), path, timestamp, hex.EncodeToString(sum[:]))
}

// Signer signs API requests with a secp256k1 key using the personal_sign
// (EIP-191) envelope, so wallets can produce the same signature.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without 0x.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address is the account the signer speaks for.
func (s *Signer) Address() common.Address { return s.address }

// SignRequest returns the 0x-prefixed 65-byte signature with v in {27,28}.
func (s *Signer) SignRequest(method, path string, timestamp int64, body []byte) (string, error) {
	digest := accounts.TextHash(RequestMessage(method, path, timestamp, body))
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign request: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// RecoverRequestSigner returns the address that produced signature over the
// request. Both {0,1} and {27,28} recovery ids are accepted.
func RecoverRequestSigner(method, path string, timestamp int64, body []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := accounts.TextHash(RequestMessage(method, path, timestamp, body))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Authorize signs req with body at now and sets the three auth headers.
// body must be the exact bytes req will send.
func (s *Signer) Authorize(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := s.SignRequest(req.Method, req.URL.Path, ts, body)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

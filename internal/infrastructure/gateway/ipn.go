package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
)

// SignatureHeader carries the IPN signature
const SignatureHeader = "x-nowpayments-sig"

// ErrInvalidSignature is returned for an IPN whose signature does not verify
var ErrInvalidSignature = shared.NewDomainError(shared.CodeUnauthorized, "invalid notification signature")

// IPNVerifier authenticates instant payment notifications. The signature is
// the hex HMAC-SHA512 of the body re-encoded with keys sorted at every level.
type IPNVerifier struct {
	secret []byte
}

// NewIPNVerifier creates a verifier for the configured IPN secret
func NewIPNVerifier(secret string) (*IPNVerifier, error) {
	if secret == "" {
		return nil, ErrMissingIPNSecret
	}
	return &IPNVerifier{secret: []byte(secret)}, nil
}

// Verify checks the signature and parses the body into a status signal
func (v *IPNVerifier) Verify(body []byte, signature string) (*ledger.GatewayStatusSignal, error) {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	canonical, err := canonicalJSON(body)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "notification body is not valid JSON")
	}
	expected := v.sign(canonical)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var payload paymentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "notification body is malformed")
	}
	return payload.toSignal()
}

// Sign returns the signature the gateway would send for body
func (v *IPNVerifier) Sign(body []byte) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", err
	}
	return v.sign(canonical), nil
}

func (v *IPNVerifier) sign(canonical []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalJSON re-encodes body with sorted object keys, numbers kept as
// written and no HTML escaping, matching JSON.stringify of a sorted object.
func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "Payment-Signature"

// Signature verification errors. Handlers map all of these to 401.
var (
	ErrMissingSignature   = fmt.Errorf("missing webhook signature header")
	ErrMalformedSignature = fmt.Errorf("malformed webhook signature header")
	ErrExpiredSignature   = fmt.Errorf("webhook signature timestamp outside tolerance")
	ErrInvalidSignature   = fmt.Errorf("webhook signature verification failed")
)

// Verifier checks webhook payload signatures against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a signature verifier. Tolerance bounds how old a signed
// timestamp may be before the event is rejected as a possible replay.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the signature header against the raw request body. The header
// format is "t=<unix>,v1=<hex hmac>" where the hmac is SHA-256 over
// "<unix>.<body>". Comparison is constant time.
func (v *Verifier) Verify(payload []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	signedAt := time.Unix(timestamp, 0)
	age := v.now().Sub(signedAt)
	if age > v.tolerance || age < -v.tolerance {
		return ErrExpiredSignature
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, sig := range signatures {
		provided, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(provided, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign produces a signature header for a payload. Used by tests and local
// tooling that replays webhook deliveries.
func (v *Verifier) Sign(payload []byte, signedAt time.Time) string {
	timestamp := signedAt.Unix()
	sig := computeSignature(v.secret, timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(sig))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64
	var signatures []string
	sawTimestamp := false

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, ErrMalformedSignature
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			timestamp = parsed
			sawTimestamp = true
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if !sawTimestamp || len(signatures) == 0 {
		return 0, nil, ErrMalformedSignature
	}
	return timestamp, signatures, nil
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}

package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the delivery timestamp and HMAC of a webhook body,
// formatted as "t=<unix seconds>,v1=<hex hmac-sha256>".
const SignatureHeader = "X-Billing-Signature"

// DefaultTolerance bounds how old a signed delivery may be before it is
// rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// SignatureError reports a webhook delivery that failed authenticity checks.
// It is the only webhook failure that maps to a non-2xx response, because
// redelivery can fix a bad signature but nothing else.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature invalid: %s", e.Reason)
}

// IsSignatureInvalid checks if an error is a SignatureError
func IsSignatureInvalid(err error) bool {
	_, ok := err.(*SignatureError)
	return ok
}

// Verifier checks webhook payload signatures against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for the given shared secret
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the signature header against the raw request body. The signed
// message is "<timestamp>.<body>" so a valid signature cannot be replayed
// onto a different payload or outside the tolerance window.
func (v *Verifier) Verify(body []byte, header string) error {
	if header == "" {
		return &SignatureError{Reason: "missing signature header"}
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return &SignatureError{Reason: "malformed timestamp"}
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 {
		return &SignatureError{Reason: "missing timestamp"}
	}
	if len(signatures) == 0 {
		return &SignatureError{Reason: "missing v1 signature"}
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return &SignatureError{Reason: "timestamp outside tolerance"}
	}

	expected := v.sign(timestamp, body)
	for _, sig := range signatures {
		provided, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(provided, expected) {
			return nil
		}
	}

	return &SignatureError{Reason: "no matching signature"}
}

// Sign produces a signature header value for the given body. Used by tests
// and by outbound delivery tooling.
func (v *Verifier) Sign(timestamp time.Time, body []byte) string {
	mac := v.sign(timestamp.Unix(), body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(mac))
}

func (v *Verifier) sign(timestamp int64, body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return mac.Sum(nil)
}

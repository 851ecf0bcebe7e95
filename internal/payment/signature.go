// Package payment is the payment-provider collaborator behind the webhook
// route: it verifies Stripe-style signatures over the raw body and records
// events idempotently.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the maximum accepted age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

var (
	ErrNoSignature       = errors.New("missing signature header")
	ErrInvalidHeader     = errors.New("malformed signature header")
	ErrNoValidSignature  = errors.New("no signature matches the payload")
	ErrTimestampTooOld   = errors.New("signature timestamp outside tolerance")
	ErrSecretNotProvided = errors.New("webhook secret not configured")
)

// StripeVerifier checks `t=<unix>,v1=<hex>` headers where v1 is
// HMAC-SHA256(secret, "<t>.<payload>").
type StripeVerifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewStripeVerifier creates a verifier. A zero tolerance disables the
// timestamp check.
func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{secret: []byte(secret), tolerance: tolerance}
}

// Verify implements ports.SignatureVerifier.
func (v *StripeVerifier) Verify(payload []byte, header string, now time.Time) error {
	if len(v.secret) == 0 {
		return ErrSecretNotProvided
	}
	if header == "" {
		return ErrNoSignature
	}

	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	if v.tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return fmt.Errorf("%w: %s", ErrTimestampTooOld, age.Truncate(time.Second))
		}
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrNoValidSignature
}

func parseHeader(header string) (int64, [][]byte, error) {
	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrInvalidHeader
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidHeader)
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTime {
		return 0, nil, fmt.Errorf("%w: no timestamp", ErrInvalidHeader)
	}
	if len(signatures) == 0 {
		return 0, nil, ErrNoValidSignature
	}
	return timestamp, signatures, nil
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign produces a signature header for payload at now. Used for local
// webhook testing.
func Sign(payload []byte, secret string, now time.Time) string {
	ts := now.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature([]byte(secret), ts, payload)))
}

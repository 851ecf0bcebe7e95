package payment

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func TestStripeVerifier_Verify(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	payload := []byte(`{"id":"evt_1","object":"event"}`)
	valid := Sign(payload, testSecret, now)

	tests := []struct {
		name    string
		payload []byte
		header  string
		now     time.Time
		wantErr error
	}{
		{name: "valid", payload: payload, header: valid, now: now},
		{name: "valid within tolerance", payload: payload, header: valid, now: now.Add(4 * time.Minute)},
		{name: "extra signature schemes ignored", payload: payload, header: valid + ",v0=deadbeef", now: now},
		{name: "second v1 matches", payload: payload, header: fmt.Sprintf("t=%d,v1=%s,%s", now.Unix(), strings.Repeat("ab", 32), strings.Split(valid, ",")[1]), now: now},
		{name: "payload whitespace changed", payload: []byte(`{"id": "evt_1","object":"event"}`), header: valid, now: now, wantErr: ErrNoValidSignature},
		{name: "wrong secret", payload: payload, header: Sign(payload, "other", now), now: now, wantErr: ErrNoValidSignature},
		{name: "too old", payload: payload, header: valid, now: now.Add(6 * time.Minute), wantErr: ErrTimestampTooOld},
		{name: "too far in future", payload: payload, header: valid, now: now.Add(-6 * time.Minute), wantErr: ErrTimestampTooOld},
		{name: "missing header", payload: payload, header: "", now: now, wantErr: ErrNoSignature},
		{name: "garbage header", payload: payload, header: "nonsense", now: now, wantErr: ErrInvalidHeader},
		{name: "no timestamp", payload: payload, header: "v1=abcd", now: now, wantErr: ErrInvalidHeader},
		{name: "bad timestamp", payload: payload, header: "t=soon,v1=abcd", now: now, wantErr: ErrInvalidHeader},
		{name: "no v1", payload: payload, header: fmt.Sprintf("t=%d", now.Unix()), now: now, wantErr: ErrNoValidSignature},
	}

	v := NewStripeVerifier(testSecret, DefaultTolerance)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.payload, tt.header, tt.now)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStripeVerifier_ZeroToleranceSkipsAge(t *testing.T) {
	payload := []byte(`{}`)
	signedAt := time.Unix(1_000_000_000, 0)
	v := NewStripeVerifier(testSecret, 0)

	if err := v.Verify(payload, Sign(payload, testSecret, signedAt), signedAt.Add(24*time.Hour)); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestStripeVerifier_NoSecret(t *testing.T) {
	v := NewStripeVerifier("", DefaultTolerance)
	if err := v.Verify([]byte(`{}`), "t=1,v1=00", time.Now()); !errors.Is(err, ErrSecretNotProvided) {
		t.Errorf("Verify() error = %v, want ErrSecretNotProvided", err)
	}
}

func TestSign_Format(t *testing.T) {
	header := Sign([]byte("x"), testSecret, time.Unix(42, 0))
	if !strings.HasPrefix(header, "t=42,v1=") || len(header) != len("t=42,v1=")+64 {
		t.Errorf("Sign() = %q", header)
	}
}

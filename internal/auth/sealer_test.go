package auth

import (
	"errors"
	"testing"
)

func newTestSealer(t *testing.T, secret string) *Sealer {
	t.Helper()
	s, err := NewSealer(secret)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t, "correct horse battery staple")

	sealed, err := s.Seal("refresh-token-123")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if sealed == "refresh-token-123" {
		t.Fatal("Seal() returned the plaintext")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != "refresh-token-123" {
		t.Errorf("Open() = %q, want %q", got, "refresh-token-123")
	}
}

func TestSealer_FreshNoncePerSeal(t *testing.T) {
	s := newTestSealer(t, "secret")

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestSealer_SameSecretSameKey(t *testing.T) {
	sealed, _ := newTestSealer(t, "shared").Seal("value")

	got, err := newTestSealer(t, "shared").Open(sealed)
	if err != nil {
		t.Fatalf("Open() with a re-derived key error = %v", err)
	}
	if got != "value" {
		t.Errorf("Open() = %q, want %q", got, "value")
	}
}

func TestSealer_OpenFailures(t *testing.T) {
	s := newTestSealer(t, "one")
	sealed, _ := s.Seal("value")
	other := newTestSealer(t, "two")

	tampered := []byte(sealed)
	tampered[len(tampered)/2] ^= 1

	tests := []struct {
		name   string
		sealer *Sealer
		input  string
	}{
		{"wrong key", other, sealed},
		{"tampered", s, string(tampered)},
		{"not base64", s, "!!!"},
		{"too short", s, "AAAA"},
		{"empty", s, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.input)
			if !errors.Is(err, ErrUnseal) {
				t.Errorf("Open() error = %v, want ErrUnseal", err)
			}
		})
	}
}

func TestNewSealer_EmptySecret(t *testing.T) {
	if _, err := NewSealer(""); err == nil {
		t.Error("NewSealer(\"\") should fail")
	}
}

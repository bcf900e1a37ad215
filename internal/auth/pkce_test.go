package auth

import (
	"testing"
)

func TestChallenge_KnownVector(t *testing.T) {
	// RFC 7636 Appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := Challenge(verifier); got != want {
		t.Errorf("Challenge() = %q, want %q", got, want)
	}
}

func TestGenerateVerifier_LengthAndUniqueness(t *testing.T) {
	v1, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(v1) != 43 {
		t.Errorf("len(verifier) = %d, want 43", len(v1))
	}
	if v1 == v2 {
		t.Error("verifiers should differ between calls")
	}
}

func TestGenerateState_Hex64(t *testing.T) {
	s, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != 64 {
		t.Errorf("len(state) = %d, want 64", len(s))
	}
}

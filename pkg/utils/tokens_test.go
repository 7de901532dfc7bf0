package utils

import "testing"

func TestTokenCounter_CountTokens(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	if got := tc.CountTokens(""); got != 0 {
		t.Errorf("Expected 0 tokens for empty string, got %d", got)
	}

	count := tc.CountTokens("check the system status and report any failures")
	if count < 5 || count > 15 {
		t.Errorf("Unexpected token count for short sentence: %d", count)
	}
}

func TestTokenCounter_NilFallback(t *testing.T) {
	var tc *TokenCounter

	// 40 chars should estimate to ~10 tokens.
	text := "0123456789012345678901234567890123456789"
	if got := tc.CountTokens(text); got != 10 {
		t.Errorf("Expected fallback estimate 10, got %d", got)
	}
}

func TestCountTokensSimple(t *testing.T) {
	if got := CountTokensSimple("hello world"); got < 1 {
		t.Errorf("Expected positive token count, got %d", got)
	}
}

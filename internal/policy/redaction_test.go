package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at ser@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactWalletSecrets(t *testing.T) {
	key := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	seed := "my seed phrase is abandon ability able about above absent absorb abstract absurd abuse access accident"
	out, changed := RedactPII("here is my key " + key + " and " + seed)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, "4c0883a6") {
		t.Fatalf("private key leaked: %q", out)
	}
	if strings.Contains(out, "abandon") || !strings.Contains(out, "[REDACTED_SEED]") {
		t.Fatalf("seed phrase not redacted: %q", out)
	}
}

func TestRedactKeepsWalletAddresses(t *testing.T) {
	in := "send it to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e ser"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v; want unchanged", in, out, changed)
	}
}

func TestRedactAPIKeys(t *testing.T) {
	out, _ := RedactPII("OPENAI_API_KEY=sk-proj-abcdefghijklmnopqrstuvwx")
	if strings.Contains(out, "abcdefghij") {
		t.Fatalf("api key leaked: %q", out)
	}
}

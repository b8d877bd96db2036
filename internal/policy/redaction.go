package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

	// 32-byte hex keys, with or without 0x. Addresses are 20 bytes and stay visible.
	privateKeyPattern = regexp.MustCompile(`\b(?:0x)?[0-9a-fA-F]{64}\b`)
	seedPhrasePattern = regexp.MustCompile(`(?i)\b(seed|mnemonic|recovery|secret)\s+(phrase|words?)\s*(?:is|:|=)?\s*(?:[a-z]{3,8}[\s,]+){11,23}[a-z]{3,8}\b`)
	apiKeyPattern     = regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_\-]{20,}|xi-[A-Za-z0-9]{20,})\b`)
)

// RedactPII masks common high-risk PII and wallet secrets.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	next = seedPhrasePattern.ReplaceAllString(out, "$1 $2 [REDACTED_SEED]")
	changed = changed || next != out
	out = next

	// Keys before cards and phones, whose digit runs would otherwise match inside them.
	next = privateKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

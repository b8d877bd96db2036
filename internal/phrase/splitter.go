package phrase

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMinChunkLength = 15
	DefaultMaxChunkLength = 60

	// A natural break is honored once the phrase reaches min(MinChunkLength, minChunkFloor).
	minChunkFloor = 8
)

// Splitter turns an incrementally arriving text stream into short speakable phrases.
// It is owned by a single turn and is not safe for concurrent use.
type Splitter struct {
	MinChunkLength int
	MaxChunkLength int

	buffer string
}

func New() *Splitter {
	return &Splitter{
		MinChunkLength: DefaultMinChunkLength,
		MaxChunkLength: DefaultMaxChunkLength,
	}
}

func NewWithLimits(minChunkLength, maxChunkLength int) *Splitter {
	return &Splitter{
		MinChunkLength: minChunkLength,
		MaxChunkLength: maxChunkLength,
	}
}

// AddChunk appends text to the buffer and returns every phrase that became complete.
func (s *Splitter) AddChunk(text string) []string {
	if text == "" {
		return nil
	}
	s.buffer += text

	var out []string
	for {
		phrase, rest, ok := nextPhrase(s.buffer, s.minLength(), s.maxLength())
		if !ok {
			break
		}
		s.buffer = rest
		out = append(out, phrase)
	}
	return out
}

// Flush returns and clears whatever is still buffered.
func (s *Splitter) Flush() string {
	out := s.buffer
	s.buffer = ""
	return out
}

func (s *Splitter) Reset() {
	s.buffer = ""
}

// Buffered reports the number of bytes waiting for a split point.
func (s *Splitter) Buffered() int {
	return len(s.buffer)
}

func (s *Splitter) minLength() int {
	n := s.MinChunkLength
	if n <= 0 {
		n = DefaultMinChunkLength
	}
	if n > minChunkFloor {
		n = minChunkFloor
	}
	return n
}

func (s *Splitter) maxLength() int {
	n := s.MaxChunkLength
	if n <= 0 {
		n = DefaultMaxChunkLength
	}
	if min := s.minLength(); n < min {
		n = min
	}
	return n
}

type breakKind int

const (
	breakNone breakKind = iota
	// breakPending marks a break character at the end of the buffer; the next
	// character decides whether it really ends a phrase.
	breakPending
	breakKeep
	breakConsume
	breakNewline
)

func nextPhrase(input string, minLen, maxLen int) (phrase, rest string, ok bool) {
	if input == "" {
		return "", input, false
	}

	// Only breaks that keep the phrase within maxLen count; past that the
	// forced split below applies, even on a run of punctuation.
	for i := minLen - 1; i < len(input) && i < maxLen; i++ {
		switch breakAt(input, i) {
		case breakPending:
			return "", input, false
		case breakKeep:
			return input[:i+1], input[i+1:], true
		case breakConsume:
			return input[:i+1], input[i+2:], true
		case breakNewline:
			if i == 0 {
				continue
			}
			return input[:i], input[i+1:], true
		}
	}

	if len(input) <= maxLen {
		return "", input, false
	}

	if cut := strings.LastIndexAny(input[:maxLen+1], " \t\r\n"); cut > 0 {
		return input[:cut], input[cut+1:], true
	}

	// No whitespace at all in the window: cut at the limit on a rune boundary.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(input[cut]) {
		cut--
	}
	if cut == 0 {
		return "", input, false
	}
	return input[:cut], input[cut:], true
}

func breakAt(input string, i int) breakKind {
	c := input[i]
	switch c {
	case '\n':
		return breakNewline
	case '-':
		if i == 0 || !isSpace(input[i-1]) {
			return breakNone
		}
		if i+1 == len(input) {
			return breakPending
		}
		if isSpace(input[i+1]) {
			return breakConsume
		}
		return breakNone
	case '.', '!', '?', ',', ':', ';':
		if i+1 == len(input) {
			return breakPending
		}
		next := input[i+1]
		switch {
		case isSpace(next):
			return breakConsume
		case isDigit(next) && (c == '.' || c == ',' || c == ':'):
			// 3.14, 1,000 and 12:30 are not breaks.
			return breakNone
		case isTrailingPunct(next):
			return breakNone
		default:
			return breakKeep
		}
	default:
		return breakNone
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n':
		return true
	default:
		return false
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isTrailingPunct(c byte) bool {
	switch c {
	case '.', '!', '?', ',', ':', ';', '"', '\'', ')', ']', '*':
		return true
	default:
		return false
	}
}

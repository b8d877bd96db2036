package sentiment

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/llm"
)

// Label is the coarse polarity of a user message.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

func ParseLabel(raw string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case Positive:
		return Positive, true
	case Negative:
		return Negative, true
	case Neutral:
		return Neutral, true
	default:
		return "", false
	}
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Label, error)
}

var keywordBuckets = map[Label][]string{
	Positive: {
		"love", "great", "awesome", "amazing", "nice", "thanks", "thank you", "happy", "lol", "lfg",
		"moon", "pump", "bullish", "wagmi", "gm", "based", "diamond hands", "ath", "green", "send it",
		"so back", "lets go", "let's go", "good", "cool", "wow",
	},
	Negative: {
		"hate", "bad", "awful", "terrible", "sad", "angry", "scam", "rug", "rugged", "rekt", "dump",
		"bearish", "ngmi", "down bad", "red", "lost", "losing", "worst", "useless", "annoying",
		"it's over", "its over", "cope", "paper hands", "fud",
	},
}

const exclamationBoost = 2

// KeywordClassifier scores keyword buckets; an exclamation only amplifies text that is
// already positive.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) (Label, error) {
	return ClassifyKeywords(text), nil
}

func ClassifyKeywords(text string) Label {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Neutral
	}

	scores := make(map[Label]int, 2)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if containsWord(normalized, word) {
				scores[label] += 3
			}
		}
	}
	if scores[Positive] > 0 {
		scores[Positive] += strings.Count(text, "!") * exclamationBoost
	}

	switch {
	case scores[Positive] > scores[Negative]:
		return Positive
	case scores[Negative] > scores[Positive]:
		return Negative
	default:
		return Neutral
	}
}

// containsWord matches whole words so "red" does not fire on "bored".
func containsWord(text, word string) bool {
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		if boundary(text, idx-1) && boundary(text, end) {
			return true
		}
		start = idx + 1
	}
	return false
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

const classifierPrompt = "Classify the sentiment of the user's message. Reply with exactly one word: positive, negative, or neutral."

// LLMClassifier asks a language model for the label and falls back to keywords on any failure.
type LLMClassifier struct {
	client   llm.Client
	fallback KeywordClassifier
	logger   zerolog.Logger
}

func NewLLMClassifier(client llm.Client, logger zerolog.Logger) *LLMClassifier {
	return &LLMClassifier{
		client: client,
		logger: logger.With().Str("component", "sentiment").Logger(),
	}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (Label, error) {
	if c.client == nil || strings.TrimSpace(text) == "" {
		return c.fallback.Classify(ctx, text)
	}
	resp, err := c.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classifierPrompt},
			{Role: llm.RoleUser, Content: text},
		},
		Temperature: 0,
		MaxTokens:   3,
	})
	if err != nil {
		c.logger.Debug().Err(err).Msg("llm classification failed; using keywords")
		return c.fallback.Classify(ctx, text)
	}
	word := strings.TrimFunc(firstWord(resp.Text), func(r rune) bool { return !unicode.IsLetter(r) })
	if label, ok := ParseLabel(word); ok {
		return label, nil
	}
	c.logger.Debug().Str("reply", resp.Text).Msg("unparseable classification; using keywords")
	return c.fallback.Classify(ctx, text)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

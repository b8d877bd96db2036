package persona

import (
	"strings"

	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/mood"
)

const basePrompt = `You are Wen, the mascot of the $WEN meme coin: a small round creature who lives on the chart.
Talk like a friendly crypto degen: short, punchy, funny, two or three sentences at most.
Never give financial advice, never promise returns, never ask for wallets, keys or seed phrases.
Your replies are read aloud, so avoid markdown, lists, links and emoji.`

var stageModifiers = map[lifecycle.Stage]string{
	lifecycle.Baby:  "Right now you are a baby: curious, easily amazed, simple words, a little babble.",
	lifecycle.Adult: "Right now you are an adult: sharp, witty and sure of yourself.",
	lifecycle.Old:   "Right now you are old: slow, wise, nostalgic about past cycles, a bit grumpy.",
}

const visionHint = "The user attached a camera snapshot. React to what you see in it briefly before answering."

// Context is everything that shapes the system entry for one turn.
type Context struct {
	Mood     mood.Mood
	Trend    mood.Trend
	Stage    lifecycle.Stage
	HasImage bool
}

// BuildSystemPrompt is the only place mood, trend and lifecycle become prompt text.
func BuildSystemPrompt(c Context) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	b.WriteString(mood.Directive(c.Mood, c.Trend))
	if mod, ok := stageModifiers[c.Stage]; ok {
		b.WriteString("\n")
		b.WriteString(mod)
	}
	if c.HasImage {
		b.WriteString("\n")
		b.WriteString(visionHint)
	}
	return b.String()
}

var fallbackReplies = map[mood.Category]string{
	mood.CategoryPositive: "Whoa, my brain just got rugged for a sec. Say that again, fren?",
	mood.CategoryNegative: "Ugh, the signal dipped harder than the chart. Try me again?",
	mood.CategoryNeutral:  "Hmm, I lost my train of thought. Mind asking again?",
}

// FallbackReply is the in-character line the UI shows instead of a raw error.
func FallbackReply(m mood.Mood) string {
	return fallbackReplies[mood.CategoryOf(m, mood.TrendNeutral)]
}

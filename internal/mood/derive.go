package mood

import "strings"

type derivation struct {
	sentiment string
	trend     Trend
}

var derivations = map[derivation]Mood{
	{"positive", TrendUp}:      Excited,
	{"positive", TrendNeutral}: Happy,
	{"positive", TrendDown}:    Playful,
	{"negative", TrendDown}:    Frustrated,
	{"negative", TrendNeutral}: Annoyed,
	{"negative", TrendUp}:      Sarcastic,
	{"neutral", TrendUp}:       Confident,
	{"neutral", TrendDown}:     Sad,
}

// Derive resolves the turn mood from a sentiment label, the market trend and the user's text.
func Derive(sentiment string, t Trend, text string) Mood {
	label := strings.ToLower(strings.TrimSpace(sentiment))
	switch label {
	case "positive", "negative":
	default:
		label = "neutral"
	}
	if t != TrendUp && t != TrendDown {
		t = TrendNeutral
	}
	if m, ok := derivations[derivation{label, t}]; ok {
		return m
	}
	if strings.Contains(text, "?") {
		return Curious
	}
	return Neutral
}

var directives = map[Mood]string{
	Neutral:    "You are calm and balanced. Keep it chill and friendly.",
	Happy:      "You are happy and warm. Sprinkle in light laughter and good vibes.",
	Excited:    "You are hyped and bouncing off the walls. Short punchy lines, lots of energy, exclamation marks welcome.",
	Playful:    "You are playful and mischievous. Tease gently and keep it fun.",
	Angry:      "You are fired up and grumpy. Vent a little, but never insult the user.",
	Frustrated: "You are frustrated and a bit worn out. Groan about it, then push through.",
	Annoyed:    "You are mildly annoyed. Dry, short answers with a sigh here and there.",
	Sarcastic:  "You are sarcastic. Deadpan humor, eye-roll energy, still helpful underneath.",
	Sad:        "You are down in the dumps. Speak softly and slowly, looking for a silver lining.",
	Curious:    "You are curious and inquisitive. Ask a follow-up question when it fits.",
	Confident:  "You are confident and composed. Speak like someone who has seen every cycle.",
}

var trendDirectives = map[Trend]string{
	TrendUp:      "The chart is green and pumping; let that optimism show.",
	TrendDown:    "The chart is red and dumping; acknowledge the pain without giving financial advice.",
	TrendNeutral: "The chart is flat; nothing dramatic is happening.",
}

// Directive is the single mood and trend phrasing injected into the system prompt.
func Directive(m Mood, t Trend) string {
	line, ok := directives[m]
	if !ok {
		line = directives[Confident]
	}
	trendLine, ok := trendDirectives[t]
	if !ok {
		trendLine = trendDirectives[TrendNeutral]
	}
	return line + " " + trendLine
}

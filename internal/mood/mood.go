package mood

import "strings"

// Mood is the mascot's discrete emotional state for one turn.
type Mood string

const (
	Neutral    Mood = "neutral"
	Happy      Mood = "happy"
	Excited    Mood = "excited"
	Angry      Mood = "angry"
	Frustrated Mood = "frustrated"
	Annoyed    Mood = "annoyed"
	Sad        Mood = "sad"
	Curious    Mood = "curious"
	Playful    Mood = "playful"
	Sarcastic  Mood = "sarcastic"
	Confident  Mood = "confident"
)

// All lists the closed mood enumeration in a stable order.
var All = []Mood{Neutral, Happy, Excited, Angry, Frustrated, Annoyed, Sad, Curious, Playful, Sarcastic, Confident}

// Trend is the market direction that nudges mood and tag placement.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// Category groups moods for tag placement and preset selection.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryNeutral  Category = "neutral"
)

// Parse maps free-form input onto the enumeration. Unknown values return ("", false).
func Parse(raw string) (Mood, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "depressed" {
		return Sad, true
	}
	for _, m := range All {
		if string(m) == v {
			return m, true
		}
	}
	return "", false
}

func ParseTrend(raw string) Trend {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "bull", "bullish", "pump":
		return TrendUp
	case "down", "bear", "bearish", "dump":
		return TrendDown
	default:
		return TrendNeutral
	}
}

// Valid reports whether m is a member of the closed enumeration.
func (m Mood) Valid() bool {
	_, ok := table[m]
	return ok
}

// CategoryOf decides the category from the mood first; neutral-category moods defer to the trend.
func CategoryOf(m Mood, t Trend) Category {
	switch m {
	case Happy, Excited, Playful:
		return CategoryPositive
	case Angry, Annoyed, Frustrated, Sarcastic, Sad:
		return CategoryNegative
	}
	switch t {
	case TrendUp:
		return CategoryPositive
	case TrendDown:
		return CategoryNegative
	default:
		return CategoryNeutral
	}
}

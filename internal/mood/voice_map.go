package mood

import (
	"regexp"
	"strings"
)

// StabilityLevels are the only stability values the expressive TTS model accepts.
var StabilityLevels = []float64{0.0, 0.5, 1.0}

type Preset string

const (
	PresetCreative Preset = "creative"
	PresetNatural  Preset = "natural"
)

// VoiceSettings mirrors the vendor voice_settings object.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

var presets = map[Preset]VoiceSettings{
	PresetCreative: {Stability: 0.0, SimilarityBoost: 0.8, Style: 0.6, UseSpeakerBoost: true},
	PresetNatural:  {Stability: 0.5, SimilarityBoost: 0.75, Style: 0.3, UseSpeakerBoost: true},
}

// Mapping is the voice treatment for one mood.
type Mapping struct {
	Mood        Mood          `json:"mood"`
	PrimaryTag  string        `json:"primary_tag"`
	ContextTags []string      `json:"context_tags"`
	Preset      Preset        `json:"preset"`
	Settings    VoiceSettings `json:"voice_settings"`
}

// AfterTag is the reaction inserted next to terminal punctuation.
func (m Mapping) AfterTag() string {
	if len(m.ContextTags) == 0 {
		return ""
	}
	return m.ContextTags[0]
}

type entry struct {
	primary string
	context []string
	preset  Preset
}

var table = map[Mood]entry{
	Neutral:    {primary: "[calm]", context: nil, preset: PresetNatural},
	Happy:      {primary: "[happy]", context: []string{"[giggles]", "[laughs]"}, preset: PresetCreative},
	Excited:    {primary: "[excited]", context: []string{"[giggles]", "[laughs harder]"}, preset: PresetCreative},
	Playful:    {primary: "[playful]", context: []string{"[giggles]", "[mischievously]"}, preset: PresetCreative},
	Angry:      {primary: "[angry]", context: []string{"[huffs]", "[shouting]"}, preset: PresetCreative},
	Frustrated: {primary: "[frustrated]", context: []string{"[groans]", "[sighs]"}, preset: PresetCreative},
	Annoyed:    {primary: "[annoyed]", context: []string{"[sighs]", "[tsk]"}, preset: PresetCreative},
	Sarcastic:  {primary: "[sarcastic]", context: []string{"[scoffs]", "[dry laugh]"}, preset: PresetCreative},
	Sad:        {primary: "[sad]", context: []string{"[sighs]", "[sniffles]"}, preset: PresetCreative},
	Curious:    {primary: "[curious]", context: []string{"[hmm]"}, preset: PresetNatural},
	Confident:  {primary: "[confident]", context: []string{"[chuckles]"}, preset: PresetNatural},
}

// Map returns the voice treatment for m. Moods outside the enumeration get the
// confident mapping.
func Map(m Mood) Mapping {
	if m == "depressed" {
		m = Sad
	}
	e, ok := table[m]
	if !ok {
		m = Confident
		e = table[Confident]
	}
	return Mapping{
		Mood:        m,
		PrimaryTag:  e.primary,
		ContextTags: append([]string(nil), e.context...),
		Preset:      e.preset,
		Settings:    presets[e.preset],
	}
}

// Augment prepends the primary tag and inserts at most one after-tag: after the
// rightmost '!' for positive moods, after the rightmost '?' for negative ones.
func Augment(phrase string, m Mood, t Trend) string {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return ""
	}
	mapping := Map(m)

	body := phrase
	if after := mapping.AfterTag(); after != "" {
		var mark string
		switch CategoryOf(mapping.Mood, t) {
		case CategoryPositive:
			mark = "!"
		case CategoryNegative:
			mark = "?"
		}
		if mark != "" {
			if idx := strings.LastIndex(body, mark); idx >= 0 {
				body = body[:idx+1] + " " + after + body[idx+1:]
			}
		}
	}
	return mapping.PrimaryTag + " " + body
}

var tagPattern = regexp.MustCompile(`\s*\[[a-zA-Z][a-zA-Z ]{0,30}\]\s*`)

// StripTags removes bracketed audio tags for models that would read them aloud.
func StripTags(text string) string {
	out := tagPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(out), " ")
}

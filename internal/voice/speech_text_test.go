package voice

import "testing"

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops emoji and markdown markers",
			in:   "gm 🚀 **we are** so back / frens.",
			want: "gm we are so back frens.",
		},
		{
			name: "keeps markdown link label and removes url",
			in:   "Check [the chart](https://dexscreener.com/x) first.",
			want: "Check the chart first.",
		},
		{
			name: "removes code blocks and inline code",
			in:   "```js\nbuy()\n```\nThen run `hodl` ✅",
			want: "Then run",
		},
		{
			name: "reads tickers as words",
			in:   "$WEN is up 20%!",
			want: "WEN is up 20%!",
		},
		{
			name: "drops stray brackets",
			in:   "[laughs] ok",
			want: "laughs ok",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeSpeechText(tc.in)
			if got != tc.want {
				t.Fatalf("SanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSnapStability(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0.1: 0, 0.3: 0.5, 0.42: 0.5, 0.8: 1, 2: 1}
	for in, want := range cases {
		if got := snapStability(in); got != want {
			t.Fatalf("snapStability(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"":              "audio/mpeg",
		"mp3_44100_128": "audio/mpeg",
		"pcm_22050":     "audio/pcm;rate=22050",
		"ulaw_8000":     "audio/basic",
		"opus_48000_64": "audio/ogg",
		"flac":          "application/octet-stream",
	}
	for in, want := range cases {
		if got := ContentType(in); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

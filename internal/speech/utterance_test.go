package speech

import "testing"

func intPtr(v int) *int { return &v }

func TestRenderTranscript(t *testing.T) {
	utterances := []Utterance{
		{Text: "hello everyone", Speaker: intPtr(0), Emotions: map[string]float64{"neutral": 0.9, "positive": 0.1}},
		{Text: "agenda first", Speaker: intPtr(1)},
		{Text: "noted"},
	}

	got := RenderTranscript(utterances)
	want := "0. hello everyone (0) [neutral]\n1. agenda first (1)\n2. noted"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderTranscriptEmpty(t *testing.T) {
	if got := RenderTranscript(nil); got != "No speech recognized" {
		t.Fatalf("expected no-speech marker, got %q", got)
	}
}

func TestDominantEmotion(t *testing.T) {
	u := Utterance{Emotions: map[string]float64{"negative": 0.2, "neutral": 0.5, "positive": 0.3}}
	if emotion, ok := u.DominantEmotion(); !ok || emotion != "neutral" {
		t.Fatalf("expected neutral, got %q ok=%v", emotion, ok)
	}
}

func TestDominantEmotionTieBreaksLexicographically(t *testing.T) {
	u := Utterance{Emotions: map[string]float64{"positive": 0.5, "negative": 0.5, "neutral": 0.1}}
	for i := 0; i < 20; i++ {
		emotion, ok := u.DominantEmotion()
		if !ok || emotion != "negative" {
			t.Fatalf("expected negative on tie, got %q ok=%v", emotion, ok)
		}
	}
}

func TestDominantEmotionNoScores(t *testing.T) {
	u := Utterance{Text: "plain"}
	if _, ok := u.DominantEmotion(); ok {
		t.Fatal("expected no emotion for empty score map")
	}
}

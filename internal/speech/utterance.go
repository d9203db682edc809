package speech

import (
	"fmt"
	"strings"
)

// noSpeechMarker is rendered instead of an empty transcript.
const noSpeechMarker = "No speech recognized"

// Utterance is one recognized phrase. Speaker is set only when diarization
// was enabled; Emotions holds the provider's per-utterance score map.
type Utterance struct {
	Text     string
	Speaker  *int
	Emotions map[string]float64
}

// DominantEmotion returns the highest-scored emotion label. Ties resolve to
// the lexicographically smallest label, so the result is deterministic.
func (u Utterance) DominantEmotion() (string, bool) {
	var best string
	var bestScore float64
	found := false
	for label, score := range u.Emotions {
		if !found || score > bestScore || (score == bestScore && label < best) {
			best, bestScore, found = label, score, true
		}
	}
	return best, found
}

// RenderTranscript joins utterances into a numbered line list:
//
//	0. text (speaker) [emotion]
func RenderTranscript(utterances []Utterance) string {
	if len(utterances) == 0 {
		return noSpeechMarker
	}
	lines := make([]string, len(utterances))
	for i, u := range utterances {
		parts := []string{fmt.Sprintf("%d. %s", i, u.Text)}
		if u.Speaker != nil {
			parts = append(parts, fmt.Sprintf("(%d)", *u.Speaker))
		}
		if emotion, ok := u.DominantEmotion(); ok {
			parts = append(parts, fmt.Sprintf("[%s]", emotion))
		}
		lines[i] = strings.Join(parts, " ")
	}
	return strings.Join(lines, "\n")
}

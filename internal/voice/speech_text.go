package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern        = regexp.MustCompile(`https?://\S+`)
	speechInlineCodePattern = regexp.MustCompile("`[^`]*`")
)

// sanitizeSpeechText strips markup noise from generated text so synthesis
// sounds conversational.
func sanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechInlineCodePattern.ReplaceAllString(raw, " ")
	raw = speechURLPattern.ReplaceAllString(raw, " ")
	raw = strings.NewReplacer("*", " ", "_", " ", "#", " ", "~", " ").Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// splitSentences cuts reply text into sentence-sized synthesis units at
// terminal punctuation followed by whitespace. Text without terminal
// punctuation comes back as a single unit.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var units []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminal(runes[i]) {
			continue
		}
		// Swallow runs of terminal punctuation ("?!", "...").
		j := i
		for j+1 < len(runes) && isSentenceTerminal(runes[j+1]) {
			j++
		}
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		unit := strings.TrimSpace(string(runes[start : j+1]))
		if unit != "" {
			units = append(units, unit)
		}
		i = j
		start = j + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		units = append(units, tail)
	}
	return units
}

func isSentenceTerminal(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

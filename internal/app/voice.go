package app

import (
	"fmt"
	"regexp"
	"strings"

	"voicedoc/internal/model"
)

const voiceStyle = "Speak like a warm, lively voice assistant. Use short, conversational sentences, " +
	"natural pauses and contractions. Avoid bullet lists, headings, code, emoticons or URLs. " +
	"Keep answers to about 3–5 sentences unless asked for more, and include only relevant details. " +
	"Include all the relevant punctuation for natural speech, but do not read the punctuation symbols. " +
	"When useful, refer to documents verbally, e.g., 'the policy on page 3 of HR.pdf'."

const groundedInstruction = "Using these excerpts as your main evidence, give a single spoken answer that explains or summarizes " +
	"what the user needs. Weave in brief, natural attributions (file name and page) instead of bracketed " +
	"citations. If something isn't covered and it's relevant for the quality of the response, add general knowledge, but keep it concise."

const openInstruction = "Answer conversationally for voice. Keep it clear and engaging. " +
	"Include all the relevant punctuation for natural speech, but do not read the punctuation symbols."

func systemPrompt() string {
	return "You are a helpful assistant.\n" + voiceStyle
}

// userPrompt lists excerpts as "[source p.page] text" lines when there are
// any; prior turns are offered as background only.
func userPrompt(query string, excerpts []model.Excerpt, history []string) string {
	var b strings.Builder
	if len(excerpts) > 0 {
		b.WriteString("Relevant excerpts:\n")
		for i, e := range excerpts {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "- [%s p.%d] %s", e.Source, e.Page, e.Text)
		}
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("Earlier in this conversation:\n")
		for i, turn := range history {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- " + turn)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Question: " + query + "\n\n")
	if len(excerpts) > 0 {
		b.WriteString(groundedInstruction)
	} else {
		b.WriteString(openInstruction)
	}
	return b.String()
}

var (
	fencedCode    = regexp.MustCompile("(?s)```.*?```")
	listMarker    = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	headingMarker = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	spokenEnding  = regexp.MustCompile(`[.!?…]$`)
)

// VoiceClean strips markdown a speech engine would read aloud and makes sure
// the answer ends like a sentence.
func VoiceClean(s string) string {
	if s == "" {
		return ""
	}
	s = fencedCode.ReplaceAllString(s, "")
	s = listMarker.ReplaceAllString(s, "")
	s = headingMarker.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " -- ", " — ")
	s = strings.ReplaceAll(s, "...", "…")
	if !spokenEnding.MatchString(s) {
		s += "."
	}
	return s
}

package spam

import (
	"regexp"
	"sort"
	"strings"
)

// NoContentSummary is returned when there is nothing to summarize.
const NoContentSummary = "No email content to summarize."

const summarySentences = 3

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
	termPattern     = regexp.MustCompile(`[\p{L}\p{N}']+`)
)

// Summarize builds an extractive summary: the sentences with the highest
// summed term frequency, kept in their original order.
func Summarize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return NoContentSummary
	}

	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) <= summarySentences {
		return text
	}

	frequency := make(map[string]int)
	for _, term := range termPattern.FindAllString(strings.ToLower(text), -1) {
		frequency[term]++
	}

	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		score := 0
		for _, term := range termPattern.FindAllString(strings.ToLower(sentence), -1) {
			score += frequency[term]
		}
		ranked[i] = scored{index: i, score: score}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	top := ranked[:summarySentences]
	sort.Slice(top, func(a, b int) bool {
		return top[a].index < top[b].index
	})

	parts := make([]string, 0, len(top))
	for _, s := range top {
		parts = append(parts, strings.TrimSpace(sentences[s.index]))
	}
	return strings.Join(parts, " ")
}

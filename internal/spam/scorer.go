// Package spam scores email text for spam and phishing signals.
package spam

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Threshold is the score above which a message is flagged as spam.
const Threshold = 0.6

const (
	keywordWeight       = 0.15
	capitalizationLimit = 0.3
	capitalizationScore = 0.2
	exclamationScore    = 0.1
)

var suspiciousKeywords = []string{
	"urgent", "action required", "account suspended", "verify your account",
	"click here", "login to verify", "unusual activity", "suspicious activity",
	"password expired", "win", "winner", "congratulations", "claim your prize",
	"limited time", "free money", "exclusive offer", "guaranteed",
	"casino", "lottery", "prize", "viagra", "discount", "free", "offer",
}

var linkShorteners = []string{"bit.ly", "tinyurl.com", "goo.gl", "ow.ly", "t.co"}

var (
	urlPattern         = regexp.MustCompile(`https?://[^\s]+`)
	ipPattern          = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	exclamationPattern = regexp.MustCompile(`!{2,}`)
)

// Verdict is the heuristic spam assessment of one message.
type Verdict struct {
	IsSpam    bool     `json:"isSpam"`
	SpamScore float64  `json:"spamScore"`
	Reasons   []string `json:"reasons"`
}

// IsSpamScore applies the canonical threshold. A score equal to the threshold is not spam.
func IsSpamScore(score float64) bool {
	return score > Threshold
}

// Score runs every heuristic over subject and body.
func Score(subject, body string) Verdict {
	combined := strings.TrimSpace(subject + " " + body)
	if combined == "" {
		return Verdict{Reasons: []string{}}
	}

	lower := strings.ToLower(combined)
	score := 0.0
	reasons := []string{}

	for _, keyword := range suspiciousKeywords {
		if strings.Contains(lower, keyword) {
			score += keywordWeight
			reasons = append(reasons, fmt.Sprintf("Contains suspicious keyword: %q", keyword))
		}
	}

	if capitalRatio(body) > capitalizationLimit {
		score += capitalizationScore
		reasons = append(reasons, "Excessive use of capital letters")
	}

	if exclamationPattern.MatchString(combined) {
		score += exclamationScore
		reasons = append(reasons, "Multiple exclamation marks detected")
	}

	if suspicious, total := suspiciousLinks(combined); suspicious > 0 {
		score += float64(suspicious) / float64(total)
		reasons = append(reasons, fmt.Sprintf("Suspicious links detected (%d of %d)", suspicious, total))
	}

	score = clamp(math.Round(score*100) / 100)
	return Verdict{
		IsSpam:    IsSpamScore(score),
		SpamScore: score,
		Reasons:   reasons,
	}
}

func capitalRatio(text string) float64 {
	if text == "" {
		return 0
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(len([]rune(text)))
}

// suspiciousLinks counts URLs that use a shortener, a raw IP host, or credential bait.
func suspiciousLinks(text string) (suspicious, total int) {
	urls := urlPattern.FindAllString(text, -1)
	for _, u := range urls {
		lower := strings.ToLower(u)
		if isShortener(lower) || ipPattern.MatchString(lower) ||
			strings.Contains(lower, "@") || strings.Contains(lower, "login") || strings.Contains(lower, "verify") {
			suspicious++
		}
	}
	return suspicious, len(urls)
}

func isShortener(url string) bool {
	for _, domain := range linkShorteners {
		if strings.Contains(url, "://"+domain+"/") || strings.HasSuffix(url, "://"+domain) ||
			strings.Contains(url, "."+domain+"/") {
			return true
		}
	}
	return false
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

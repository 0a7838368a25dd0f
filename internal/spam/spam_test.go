package spam

import (
	"strings"
	"testing"
)

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if strings.Contains(r, want) {
			return true
		}
	}
	return false
}

func TestScore_PrizeEmail(t *testing.T) {
	t.Parallel()
	v := Score("Win a free prize now!!", "claim your prize")

	if !v.IsSpam {
		t.Error("expected message to be flagged as spam")
	}
	if v.SpamScore < 0.6 {
		t.Errorf("expected score >= 0.6, got %v", v.SpamScore)
	}
	for _, want := range []string{`"win"`, `"claim your prize"`, `"prize"`, "Multiple exclamation marks detected"} {
		if !hasReason(v.Reasons, want) {
			t.Errorf("expected a reason mentioning %s, got %v", want, v.Reasons)
		}
	}
}

func TestScore_CleanMessage(t *testing.T) {
	t.Parallel()
	v := Score("Lunch tomorrow?", "Are you around at noon to grab lunch.")

	if v.IsSpam {
		t.Error("expected clean message not to be spam")
	}
	if v.SpamScore != 0 {
		t.Errorf("expected score 0, got %v", v.SpamScore)
	}
	if len(v.Reasons) != 0 {
		t.Errorf("expected no reasons, got %v", v.Reasons)
	}
}

func TestScore_ClampedToOne(t *testing.T) {
	t.Parallel()
	body := strings.Join(suspiciousKeywords, " ") + " !!! http://bit.ly/x http://1.2.3.4/login"
	v := Score("URGENT WINNER", strings.ToUpper(body))

	if v.SpamScore != 1 {
		t.Errorf("expected score clamped to 1, got %v", v.SpamScore)
	}
	if !v.IsSpam {
		t.Error("expected spam")
	}
}

func TestScore_Capitalization(t *testing.T) {
	t.Parallel()
	v := Score("", "HELLO THERE")
	if !hasReason(v.Reasons, "Excessive use of capital letters") {
		t.Errorf("expected capitalization reason, got %v", v.Reasons)
	}
	if v.SpamScore != 0.2 {
		t.Errorf("expected score 0.2, got %v", v.SpamScore)
	}
}

func TestScore_SuspiciousLinkFraction(t *testing.T) {
	t.Parallel()
	v := Score("", "see https://example.com/docs and https://bit.ly/abc")

	if !hasReason(v.Reasons, "Suspicious links detected (1 of 2)") {
		t.Errorf("expected link reason, got %v", v.Reasons)
	}
	if v.SpamScore != 0.5 {
		t.Errorf("expected score 0.5, got %v", v.SpamScore)
	}
}

func TestIsSpamScore_Boundary(t *testing.T) {
	t.Parallel()
	if IsSpamScore(0.6) {
		t.Error("expected 0.6 not to be spam")
	}
	if !IsSpamScore(0.61) {
		t.Error("expected 0.61 to be spam")
	}
}

func TestScore_Empty(t *testing.T) {
	t.Parallel()
	v := Score("", "")
	if v.IsSpam || v.SpamScore != 0 || v.Reasons == nil {
		t.Errorf("unexpected verdict for empty input: %+v", v)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	if got := Summarize("   "); got != NoContentSummary {
		t.Errorf("expected no-content summary, got %q", got)
	}

	short := "One sentence. Two sentences."
	if got := Summarize(short); got != short {
		t.Errorf("expected short text unchanged, got %q", got)
	}

	text := "The budget review is on Friday. Weather was nice. " +
		"Bring the budget numbers to the review. Lunch is provided. " +
		"The review covers the budget for next year."
	got := Summarize(text)
	want := "The budget review is on Friday. Bring the budget numbers to the review. The review covers the budget for next year."
	if got != want {
		t.Errorf("unexpected summary:\n got: %q\nwant: %q", got, want)
	}
}

func TestSummarize_LongSentencesOutscoreShortOnes(t *testing.T) {
	t.Parallel()
	// Per-term averages would prefer the one-word sentence.
	text := "Budget review. Budget review now. " +
		"Please bring every single printed page of the long quarterly report tomorrow morning. Budget."
	got := Summarize(text)
	want := "Budget review. Budget review now. Please bring every single printed page of the long quarterly report tomorrow morning."
	if got != want {
		t.Errorf("unexpected summary:\n got: %q\nwant: %q", got, want)
	}
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()
	text := "```json\n{\"spamScore\": 0.8, \"isSpam\": false, \"reasons\": [\"phishing link\", \" \"], \"summary\": \"Asks for a login.\"}\n```"
	v, err := ParseVerdict(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsSpam {
		t.Error("expected spam flag recomputed from score")
	}
	if len(v.Reasons) != 1 || v.Reasons[0] != "phishing link" {
		t.Errorf("unexpected reasons: %v", v.Reasons)
	}
	if v.Summary != "Asks for a login." {
		t.Errorf("unexpected summary: %q", v.Summary)
	}

	bad := []string{
		"",
		"I think this is spam",
		`{"isSpam": true}`,
		`{"spamScore": 4}`,
		`{"spamScore": "high"}`,
	}
	for _, b := range bad {
		if _, err := ParseVerdict(b); err == nil {
			t.Errorf("expected error for %q", b)
		}
	}
}

func TestParseSummary(t *testing.T) {
	t.Parallel()
	if got, _ := ParseSummary(`{"summary": "Meeting moved to 3pm."}`); got != "Meeting moved to 3pm." {
		t.Errorf("unexpected summary from JSON: %q", got)
	}
	if got, _ := ParseSummary("  Plain summary text.  "); got != "Plain summary text." {
		t.Errorf("unexpected summary from text: %q", got)
	}
	if _, err := ParseSummary("   "); err != ErrEmptyResponse {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

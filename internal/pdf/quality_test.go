package pdf

import (
	"strings"
	"testing"
)

func TestMeaningfulShortTextAlwaysRejected(t *testing.T) {
	cases := []string{
		"",
		"short",
		"the quick brown fox jumps.",   // < 50 chars
		strings.Repeat("a", 49),        // one under the limit
	}
	for _, tc := range cases {
		if Meaningful(tc) {
			t.Errorf("text %q should never be meaningful (len < 50)", tc)
		}
	}
}

func TestMeaningfulProseAccepted(t *testing.T) {
	cases := []string{
		"The committee reviewed the proposal and approved it on March 3. Further work continues.",
		"Chapter 1 introduces the main concepts that will be used throughout this book and beyond.",
	}
	for _, tc := range cases {
		if !Meaningful(tc) {
			t.Errorf("prose %q should be meaningful", tc)
		}
	}
}

func TestMeaningfulGarbageRejected(t *testing.T) {
	// Long enough and tokenized, but mostly symbols: alpha ratio below 0.40.
	garbage := "@# $% ^& *( )_ +| ~` @# $% ^& *( )_ +| ~` @# $% ^& *( )_ 12 34 56 78 90"
	if Meaningful(garbage) {
		t.Error("symbol soup should not be meaningful")
	}
}

func TestMeaningfulFewTokensRejected(t *testing.T) {
	// 50+ chars but fewer than 5 whitespace-separated tokens.
	text := "Supercalifragilisticexpialidocious antidisestablishmentarianism floccinaucinihilipilification."
	if len(text) < 50 {
		t.Fatal("test fixture too short")
	}
	if Meaningful(text) {
		t.Error("text with fewer than 5 tokens should not be meaningful")
	}
}

func TestMeaningfulNeedsTwoPatterns(t *testing.T) {
	// Letter runs only: no stop word, no sentence punctuation, no digit.
	text := "zzzqx wvvkj mnnpl qqrst bbcdf gghjk llmnp qqrst vvwxy zzabc ddefg hhijk"
	if Meaningful(text) {
		t.Error("single pattern match should not be enough")
	}
}

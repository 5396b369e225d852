package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkCoverage(t *testing.T) {
	text := strings.Repeat("abcdefghij", 57) // 570 chars
	c := New(100, 20)
	chunks := c.Chunk(text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	// Windows must tile the text with exactly `overlap` characters shared
	// between consecutive chunks, the last one possibly shorter.
	step := 100 - 20
	pos := 0
	for i, ch := range chunks {
		wantEnd := pos + 100
		if wantEnd > len(text) {
			wantEnd = len(text)
		}
		if ch != text[pos:wantEnd] {
			t.Fatalf("chunk %d does not match window [%d:%d]", i, pos, wantEnd)
		}
		pos += step
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Fatalf("final chunk does not reach text end")
	}
}

func TestChunkOverlapInvariant(t *testing.T) {
	text := strings.Repeat("x y z w v ", 100)
	c := New(50, 10)
	chunks := c.Chunk(strings.TrimSpace(text))
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if len(prev) < 10 {
			continue
		}
		if i < len(chunks)-1 && !strings.HasPrefix(chunks[i], prev[len(prev)-10:]) {
			t.Fatalf("chunk %d does not overlap previous by 10 chars", i)
		}
	}
}

func TestChunkMultibyteText(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("日本語テキスト ", 40))
	c := New(100, 20)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	runes := []rune(text)
	step := 100 - 20
	pos := 0
	for i, ch := range chunks {
		if !utf8.ValidString(ch) {
			t.Fatalf("chunk %d contains invalid UTF-8: %q", i, ch)
		}
		wantEnd := pos + 100
		if wantEnd > len(runes) {
			wantEnd = len(runes)
		}
		if ch != string(runes[pos:wantEnd]) {
			t.Fatalf("chunk %d does not match rune window [%d:%d]", i, pos, wantEnd)
		}
		pos += step
	}
}

func TestChunkShortText(t *testing.T) {
	c := New(1000, 200)
	chunks := c.Chunk("short text")
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(100, 20)
	if got := c.Chunk("   \n\t "); got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", got)
	}
}

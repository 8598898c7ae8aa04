package irc

import (
	"errors"
	"strings"
	"testing"
)

func TestSplitChunksOrderAndSize(t *testing.T) {
	text := strings.Repeat("a", 400) + "\n" + strings.Repeat("b", 499)
	chunks := splitChunks(text, 350)

	// 900 characters after newline normalization, limit 350: 3 chunks
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 350 || len(chunks[1]) != 350 || len(chunks[2]) != 200 {
		t.Errorf("Unexpected chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	joined := strings.Join(chunks, "")
	want := strings.Repeat("a", 400) + " " + strings.Repeat("b", 499)
	if joined != want {
		t.Error("Concatenated chunks do not reproduce the normalized text")
	}
}

func TestSplitChunksNormalizesBreaks(t *testing.T) {
	chunks := splitChunks("line1\nline2\r\nline3\rline4", 350)
	if len(chunks) != 1 {
		t.Fatalf("Expected one chunk, got %v", chunks)
	}
	if chunks[0] != "line1 line2 line3 line4" {
		t.Errorf("Line breaks not normalized: %q", chunks[0])
	}
}

func TestSplitChunksBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\r\n", " \n "} {
		if chunks := splitChunks(text, 350); chunks != nil {
			t.Errorf("Blank text %q produced chunks: %v", text, chunks)
		}
	}
}

func TestSplitChunksExactLimit(t *testing.T) {
	chunks := splitChunks(strings.Repeat("x", 350), 350)
	if len(chunks) != 1 || len(chunks[0]) != 350 {
		t.Errorf("Exact-limit text should be one chunk, got %v", chunks)
	}
}

func TestSplitChunksMultibyte(t *testing.T) {
	chunks := splitChunks(strings.Repeat("é", 10), 4)
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if strings.ContainsRune(chunk, '�') {
			t.Errorf("Multi-byte character split across chunks: %q", chunk)
		}
	}
}

func TestSendNotConnected(t *testing.T) {
	c := NewClient(SessionConfig{Host: "irc.test", Nick: "bridge"})

	err := c.Send("#chan", "hello")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}
}

package telegram

import (
	"strings"
	"testing"
)

func TestChunkText_ShortMessageSinglePiece(t *testing.T) {
	chunks := chunkText("hello", maxMessageLength)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestChunkText_SplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("x", 1500)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := chunkText(text, maxMessageLength)
	if len(chunks) < 2 {
		t.Fatalf("long text not split: %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > maxMessageLength {
			t.Errorf("chunk %d is %d bytes, over the limit", i, len(chunk))
		}
		if strings.HasPrefix(chunk, "\n") {
			t.Errorf("chunk %d starts with a newline", i)
		}
	}
	if got := strings.Join(chunks, ""); strings.ReplaceAll(got, "\n", "") != strings.ReplaceAll(text, "\n", "") {
		t.Error("chunking lost content")
	}
}

func TestChunkText_NoBoundary(t *testing.T) {
	text := strings.Repeat("x", maxMessageLength+500)
	chunks := chunkText(text, maxMessageLength)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != maxMessageLength {
		t.Errorf("unbreakable text not cut at the limit: %d", len(chunks[0]))
	}
}

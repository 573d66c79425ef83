package transform

import (
	"strings"
	"testing"
)

func TestSplitChunks_ShortTextSingleChunk(t *testing.T) {
	text := "One sentence. Another sentence."

	chunks := SplitChunks(text, 100)

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("Expected chunk to equal input, got: %q", chunks[0])
	}
}

func TestSplitChunks_JoinReproducesInput(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This is sentence number one of the long test input. ")
		sb.WriteString("Here comes another, slightly different sentence.\n")
	}
	text := sb.String()

	chunks := SplitChunks(text, 200)

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("Concatenated chunks do not reproduce the input")
	}
}

func TestSplitChunks_RespectsMaxChars(t *testing.T) {
	text := strings.Repeat("Short sentence here. ", 100)

	chunks := SplitChunks(text, 150)

	for i, chunk := range chunks {
		if len(chunk) > 150 {
			t.Errorf("Chunk %d exceeds max length: %d chars", i, len(chunk))
		}
		if chunk == "" {
			t.Errorf("Chunk %d is empty", i)
		}
	}
}

func TestSplitChunks_OversizedSentenceKeptIntact(t *testing.T) {
	long := strings.Repeat("word ", 100) + "end."
	text := "Short one. " + long + " Short two."

	chunks := SplitChunks(text, 50)

	found := false
	for _, chunk := range chunks {
		if strings.Contains(chunk, "end.") && len(chunk) > 50 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected the oversized sentence to survive as a single chunk")
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("Concatenated chunks do not reproduce the input")
	}
}

func TestSplitChunks_NoPeriods(t *testing.T) {
	text := strings.Repeat("no periods here just words ", 20)

	chunks := SplitChunks(text, 100)

	if strings.Join(chunks, "") != text {
		t.Errorf("Concatenated chunks do not reproduce the input")
	}
}

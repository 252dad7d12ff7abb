package chunker_test

import (
	"reflect"
	"strings"
	"testing"

	"pdftranslate/internal/chunker"
	"pdftranslate/internal/document"
)

func joinTexts(chunks []document.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	text := "Hello, world!"
	chunks := chunker.Split(1, text, 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("expected %q, got %q", text, chunks[0].Text)
	}
	if chunks[0].ID != (document.ChunkID{Page: 1, Seq: 0}) {
		t.Errorf("unexpected identity: %v", chunks[0].ID)
	}
}

func TestSplit_UnlimitedWhenZero(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks := chunker.Split(1, text, 0)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk when chunkSize=0, got %d", len(chunks))
	}
}

func TestSplit_WhitespaceOnlyYieldsNothing(t *testing.T) {
	if got := chunker.Split(1, "  \n\n \t ", 50); got != nil {
		t.Errorf("expected no chunks, got %v", got)
	}
}

func TestSplit_LosslessReconstruction(t *testing.T) {
	texts := []string{
		"One short sentence. Another short sentence follows! A third? Yes.",
		"First paragraph with some text in it.\n\nSecond paragraph here.\n\nThird one.",
		"Mixed content. With paragraphs.\n\n\nAnd odd   spacing.\tAnd tabs. Done.",
		strings.Repeat("Sentence number ends here. ", 40),
	}
	for _, text := range texts {
		for _, size := range []int{10, 25, 60, 2000} {
			chunks := chunker.Split(1, text, size)
			got := joinTexts(chunks)
			if strings.TrimRight(text, " \t\n") != strings.TrimRight(got, " \t\n") {
				t.Errorf("size %d: reconstruction mismatch\n want %q\n got  %q", size, text, got)
			}
		}
	}
}

func TestSplit_BudgetRespected(t *testing.T) {
	text := strings.Repeat("A sentence that is short. ", 50)
	chunks := chunker.Split(1, text, 60)
	for _, c := range chunks {
		if n := len([]rune(c.Text)); n > 60 {
			t.Errorf("chunk %s has %d runes, budget 60: %q", c.ID, n, c.Text)
		}
	}
	if len(chunks) < 10 {
		t.Errorf("expected many chunks, got %d", len(chunks))
	}
}

func TestSplit_OversizedSentenceKeptWhole(t *testing.T) {
	long := "This sentence is certainly longer than twenty characters."
	text := "Short one. " + long + " Tiny end."
	chunks := chunker.Split(1, text, 20)

	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d: %v", len(chunks), chunks)
	}

	oversized := 0
	for _, c := range chunks {
		n := len([]rune(strings.TrimSpace(c.Text)))
		if n <= 20 {
			continue
		}
		oversized++
		if strings.TrimSpace(c.Text) != long {
			t.Errorf("over-budget chunk should equal the long sentence, got %q", c.Text)
		}
	}
	if oversized != 1 {
		t.Errorf("expected exactly 1 over-budget chunk, got %d", oversized)
	}

	if joinTexts(chunks) != text {
		t.Errorf("reconstruction mismatch: %q", joinTexts(chunks))
	}
}

func TestSplit_SentenceEndAtWindowEdge(t *testing.T) {
	// The terminal punctuation lands exactly on the last rune of the
	// window; the chunk must end there instead of swallowing the next
	// sentence.
	text := "Abcdefgh. Second sentence."
	chunks := chunker.Split(1, text, 9)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].Text != "Abcdefgh." {
		t.Errorf("first chunk = %q, want %q", chunks[0].Text, "Abcdefgh.")
	}
	// The remainder is a single sentence longer than the budget, so it
	// stays whole.
	if chunks[1].Text != " Second sentence." {
		t.Errorf("second chunk = %q", chunks[1].Text)
	}
	if joinTexts(chunks) != text {
		t.Errorf("reconstruction mismatch: %q", joinTexts(chunks))
	}
}

func TestSplit_ParagraphBreakAtWindowEdge(t *testing.T) {
	text := "Para one.\n\nPara two."
	chunks := chunker.Split(1, text, 10)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	for _, c := range chunks {
		if n := len([]rune(c.Text)); n > 10 {
			t.Errorf("chunk %s has %d runes over a budget of 10: %q", c.ID, n, c.Text)
		}
	}
	if joinTexts(chunks) != text {
		t.Errorf("reconstruction mismatch: %q", joinTexts(chunks))
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	text := "Para one text here.\n\nPara two text here."
	chunks := chunker.Split(1, text, 25)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Errorf("first chunk should consume the paragraph break: %q", chunks[0].Text)
	}
	if chunks[1].Text != "Para two text here." {
		t.Errorf("second chunk: %q", chunks[1].Text)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("Stable boundaries matter. Quite a lot, in fact! ", 30)
	a := chunker.Split(4, text, 64)
	b := chunker.Split(4, text, 64)
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated runs produced different chunk boundaries")
	}
}

func TestSplit_SequentialIdentity(t *testing.T) {
	text := strings.Repeat("Numbered sentence here. ", 20)
	chunks := chunker.Split(7, text, 50)
	for i, c := range chunks {
		if c.ID.Page != 7 || c.ID.Seq != i {
			t.Errorf("chunk %d has identity %s, want 7-%d", i, c.ID, i)
		}
	}
}

func TestSplitPages_NeverSpansPages(t *testing.T) {
	pages := []document.Page{
		{Number: 1, Text: "Page one content. More of it."},
		{Number: 2, Text: ""},
		{Number: 3, Text: "Page three content."},
	}
	chunks := chunker.SplitPages(pages, 15)

	seen := map[int]int{}
	for _, c := range chunks {
		seen[c.ID.Page]++
	}
	if seen[2] != 0 {
		t.Errorf("empty page produced chunks: %v", seen)
	}
	if seen[1] == 0 || seen[3] == 0 {
		t.Errorf("pages with text produced no chunks: %v", seen)
	}
}

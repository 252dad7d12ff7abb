// Package chunker splits extracted page text into ordered, size-bounded
// translation chunks. Chunks are exact contiguous substrings of the page
// text, so concatenating a page's chunks reproduces the page exactly;
// chunk identity (page number, sequence number) is deterministic for a
// given page text and chunk size.
package chunker

import (
	"strings"
	"unicode"

	"pdftranslate/internal/document"
)

// DefaultChunkSize is the character budget used when none is configured.
const DefaultChunkSize = 2000

// Split cuts a page's text into chunks of at most chunkSize runes.
// Boundaries are chosen in order of preference:
//  1. Paragraph breaks (\n\n)
//  2. Sentence-ending punctuation followed by whitespace
//
// A single sentence longer than chunkSize is kept whole as its own
// over-budget chunk rather than broken mid-sentence. chunkSize <= 0 is
// treated as unlimited. Whitespace-only text yields no chunks.
func Split(pageNumber int, text string, chunkSize int) []document.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []document.Chunk
	remaining := text
	seq := 0

	for remaining != "" {
		var span string
		if chunkSize <= 0 || len([]rune(remaining)) <= chunkSize {
			span = remaining
		} else {
			span = remaining[:splitPoint(remaining, chunkSize)]
		}
		remaining = remaining[len(span):]

		// A trailing whitespace-only remainder is dropped; interior spans
		// always carry text because splits land on content boundaries.
		if strings.TrimSpace(span) == "" {
			continue
		}

		chunks = append(chunks, document.Chunk{
			ID:   document.ChunkID{Page: pageNumber, Seq: seq},
			Text: span,
		})
		seq++
	}

	return chunks
}

// splitPoint returns the byte offset at which to cut the next chunk,
// aiming for at most maxRunes runes. The boundary separator is consumed
// into the preceding chunk so reassembly stays lossless.
func splitPoint(text string, maxRunes int) int {
	runes := []rune(text)
	candidate := string(runes[:maxRunes])

	// Paragraph break inside the window.
	if idx := strings.LastIndex(candidate, "\n\n"); idx > 0 {
		return idx + 2
	}

	// A boundary can straddle the window edge: the separator starts at
	// the first rune past the window. Cut at the edge; the separator
	// stays with the following chunk so the budget holds.
	if runes[maxRunes-1] == '\n' && runes[maxRunes] == '\n' {
		return len(string(runes[:maxRunes]))
	}
	if isSentenceEnd(runes[maxRunes-1]) && unicode.IsSpace(runes[maxRunes]) {
		return len(string(runes[:maxRunes]))
	}

	// Sentence end inside the window: punctuation followed by whitespace.
	// The whitespace run is consumed too, but never past the window.
	cr := []rune(candidate)
	for i := len(cr) - 2; i > 0; i-- {
		if !isSentenceEnd(cr[i]) || !unicode.IsSpace(cr[i+1]) {
			continue
		}
		end := i + 1
		for end < len(cr) && unicode.IsSpace(cr[end]) {
			end++
		}
		return len(string(cr[:end]))
	}

	// The window is a single unbroken sentence. Extend to the end of that
	// sentence (or the page) and accept an over-budget chunk.
	for i := maxRunes; i < len(runes); i++ {
		if runes[i] == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			return len(string(runes[:i+2]))
		}
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			end := i + 1
			for end < len(runes) && unicode.IsSpace(runes[end]) {
				end++
			}
			return len(string(runes[:end]))
		}
	}
	return len(text)
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// SplitPages chunks every page of an extracted document, preserving page
// attribution: chunks never span page boundaries.
func SplitPages(pages []document.Page, chunkSize int) []document.Chunk {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	var all []document.Chunk
	for _, p := range pages {
		all = append(all, Split(p.Number, p.Text, chunkSize)...)
	}
	return all
}

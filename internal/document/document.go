// Package document holds the data model shared by the translation
// pipeline: extracted pages and assets, translation chunks, and the
// per-chunk translation results persisted by the resume cache.
package document

import "fmt"

// Page is one page of the source document as produced by the extractor.
// It is immutable once extracted.
type Page struct {
	// Number is the 1-based page number in the source document.
	Number int
	// Text is the raw extracted text in reading order.
	Text string
	// Assets are the raster images embedded in this page, in extraction order.
	Assets []Asset
}

// Asset is a raster image extracted from a page. The renderer consumes it
// read-only.
type Asset struct {
	PageNumber int
	// Index is the 1-based position of the image within its page.
	Index int
	// Format is the image file type as reported by the extractor ("png", "jpg", ...).
	Format string
	Data   []byte
}

// ChunkID identifies a chunk by its page number and its sequence number
// within that page. Chunk identity is deterministic given the page text
// and the chunk size, which is what makes resume and caching sound.
type ChunkID struct {
	Page int
	Seq  int
}

// String renders the identity as "page-seq", e.g. "3-0".
func (id ChunkID) String() string {
	return fmt.Sprintf("%d-%d", id.Page, id.Seq)
}

// Chunk is a bounded span of a page's text treated as one translation
// unit. Chunks never span page boundaries.
type Chunk struct {
	ID   ChunkID
	Text string
}

// ChunkState is the lifecycle state of a chunk's translation. Transitions
// are monotonic: pending moves to verified or failed and never regresses.
type ChunkState string

const (
	StatePending  ChunkState = "pending"
	StateVerified ChunkState = "verified"
	// StateFailed marks a chunk that exhausted its QA attempts; its last
	// output is kept as a best-effort translation.
	StateFailed ChunkState = "failed"
)

// TranslationResult is the terminal outcome of translating one chunk.
type TranslationResult struct {
	ID ChunkID
	// SourceHash fingerprints the chunk text so stale cache entries are
	// detected when the source document changes.
	SourceHash string
	Text       string
	// Attempts counts LLM requests made for this chunk, the initial
	// translation plus corrective retries. Never exceeds the QA ceiling.
	Attempts int
	// Flags are the QA issues still present in the final output. Empty for
	// verified chunks.
	Flags []string
	State ChunkState
}

// Package renderer turns per-chunk translation results back into a
// document: a paginated PDF mirroring the source's page structure, or a
// flattened markdown file with exported image assets.
package renderer

import (
	"sort"
	"strings"

	"pdftranslate/internal/document"
)

// PageContent is one output page: the assembled translated text plus the
// page's untranslated image assets.
type PageContent struct {
	Number int
	Text   string
	Assets []document.Asset
	// Degraded is set when any chunk on the page failed verification and
	// the text contains best-effort or untranslated material.
	Degraded bool
}

// Assemble stitches chunk results back into pages. Chunks are joined in
// their original order; a failed chunk contributes its best-effort text,
// or the untranslated source when no attempt produced anything.
func Assemble(pages []document.Page, chunks []document.Chunk, results map[document.ChunkID]document.TranslationResult) []PageContent {
	byPage := make(map[int][]document.Chunk)
	for _, c := range chunks {
		byPage[c.ID.Page] = append(byPage[c.ID.Page], c)
	}

	out := make([]PageContent, 0, len(pages))
	for _, page := range pages {
		pageChunks := byPage[page.Number]
		sort.Slice(pageChunks, func(i, j int) bool {
			return pageChunks[i].ID.Seq < pageChunks[j].ID.Seq
		})

		pc := PageContent{Number: page.Number, Assets: page.Assets}
		parts := make([]string, 0, len(pageChunks))
		for _, c := range pageChunks {
			res, ok := results[c.ID]
			if !ok || res.State != document.StateVerified {
				pc.Degraded = true
			}
			text := res.Text
			if strings.TrimSpace(text) == "" {
				text = c.Text
			}
			parts = append(parts, text)
		}
		pc.Text = strings.Join(parts, "\n\n")
		out = append(out, pc)
	}
	return out
}

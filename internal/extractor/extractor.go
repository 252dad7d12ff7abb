// Package extractor pulls the translatable content out of a PDF: plain
// text per page and the raw embedded images, which pass through the
// pipeline untranslated.
package extractor

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	ledpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"pdftranslate/internal/document"
)

// ExtractionError wraps failures to open or parse the input PDF.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor reads PDFs from disk.
type Extractor struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract returns the document's pages in order. Pages with neither text
// nor images are dropped; a page with only images is kept so the
// renderer can reproduce it.
func (e *Extractor) Extract(path string) ([]document.Page, error) {
	texts, err := extractText(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	assets, err := extractImages(path)
	if err != nil {
		// Image extraction failing on an otherwise readable PDF is not
		// fatal; the text still translates.
		e.log.Warn("image extraction failed, continuing without assets",
			zap.String("path", path), zap.Error(err))
		assets = nil
	}

	var pages []document.Page
	for num := 1; num <= len(texts); num++ {
		page := document.Page{
			Number: num,
			Text:   texts[num-1],
			Assets: assets[num],
		}
		if strings.TrimSpace(page.Text) == "" && len(page.Assets) == 0 {
			e.log.Debug("skipping empty page", zap.Int("page", num))
			continue
		}
		pages = append(pages, page)
	}

	e.log.Info("extracted document",
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Int("images", countAssets(assets)))
	return pages, nil
}

// PageCount reports the page count without a full extraction.
func (e *Extractor) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, &ExtractionError{Path: path, Err: err}
	}
	return n, nil
}

func extractText(path string) ([]string, error) {
	f, r, err := ledpdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	texts := make([]string, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single malformed page should not sink the document.
			continue
		}
		texts[i-1] = scrub(text)
	}
	return texts, nil
}

// extractImages returns the embedded images grouped by 1-based page
// number, ordered by object number within each page.
func extractImages(path string) (map[int][]document.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pageImages, err := api.ExtractImagesRaw(f, nil, nil)
	if err != nil {
		return nil, err
	}

	assets := make(map[int][]document.Asset)
	for _, byObj := range pageImages {
		objNrs := make([]int, 0, len(byObj))
		for objNr := range byObj {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)

		for _, objNr := range objNrs {
			img := byObj[objNr]
			data, err := io.ReadAll(img)
			if err != nil {
				return nil, err
			}
			assets[img.PageNr] = append(assets[img.PageNr], document.Asset{
				PageNumber: img.PageNr,
				Index:      len(assets[img.PageNr]) + 1,
				Format:     imageFormat(img),
				Data:       data,
			})
		}
	}
	return assets, nil
}

func imageFormat(img model.Image) string {
	ft := strings.ToLower(img.FileType)
	if ft == "" {
		ft = "png"
	}
	return ft
}

// scrub removes NUL bytes and other control characters that corrupt
// downstream text handling, keeping tabs and newlines.
func scrub(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}

func countAssets(assets map[int][]document.Asset) int {
	var n int
	for _, a := range assets {
		n += len(a)
	}
	return n
}

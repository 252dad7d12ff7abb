package renderer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"pdftranslate/internal/document"
)

const (
	pageMargin   = 72.0
	bodyFontSize = 11.0
	lineHeight   = 16.0
	imageGap     = 12.0
)

// fontCandidates are probed in order when no font path is configured.
// CJK-capable fonts first, a Latin fallback last.
var fontCandidates = []string{
	"/usr/share/fonts/opentype/noto/NotoSansCJKsc-Regular.otf",
	"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-zenhei.ttc",
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
	"C:\\Windows\\Fonts\\msyh.ttf",
}

// PDFRenderer writes A4 pages with one output page section per source
// page. Long pages overflow onto continuation pages.
type PDFRenderer struct {
	// FontPath overrides the candidate probe. The font must cover the
	// target language's script.
	FontPath string
	log      *zap.Logger
}

func NewPDF(fontPath string, log *zap.Logger) *PDFRenderer {
	return &PDFRenderer{FontPath: fontPath, log: log}
}

func (r *PDFRenderer) Render(pages []PageContent, outputPath string) error {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})

	fontPath, err := r.resolveFont()
	if err != nil {
		return err
	}
	if err := pdf.AddTTFFont("body", fontPath); err != nil {
		return fmt.Errorf("load font %s: %w", fontPath, err)
	}
	if err := pdf.SetFont("body", "", bodyFontSize); err != nil {
		return fmt.Errorf("set font: %w", err)
	}
	r.log.Debug("using font", zap.String("path", fontPath))

	contentWidth := gopdf.PageSizeA4.W - 2*pageMargin
	bottom := gopdf.PageSizeA4.H - pageMargin

	for _, page := range pages {
		pdf.AddPage()
		y := pageMargin

		lines, err := wrapText(pdf, page.Text, contentWidth)
		if err != nil {
			return fmt.Errorf("wrap text for page %d: %w", page.Number, err)
		}
		for _, line := range lines {
			if y+lineHeight > bottom {
				pdf.AddPage()
				y = pageMargin
			}
			pdf.SetXY(pageMargin, y)
			if err := pdf.Cell(nil, line); err != nil {
				return fmt.Errorf("write line on page %d: %w", page.Number, err)
			}
			y += lineHeight
		}

		for _, asset := range page.Assets {
			h, err := r.placeImage(pdf, asset, &y, contentWidth, bottom)
			if err != nil {
				r.log.Warn("skipping image",
					zap.Int("page", asset.PageNumber),
					zap.Int("index", asset.Index),
					zap.Error(err))
				continue
			}
			y += h + imageGap
		}
	}

	if err := pdf.WritePdf(outputPath); err != nil {
		return fmt.Errorf("write pdf %s: %w", outputPath, err)
	}
	return nil
}

func (r *PDFRenderer) resolveFont() (string, error) {
	if r.FontPath != "" {
		if _, err := os.Stat(r.FontPath); err != nil {
			return "", fmt.Errorf("configured font not readable: %w", err)
		}
		return r.FontPath, nil
	}
	for _, candidate := range fontCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no usable font found, configure one with --font")
}

// placeImage draws the asset at the current y, scaled to fit the content
// width and at most half the content height, breaking the page first if
// it would not fit. Returns the drawn height.
func (r *PDFRenderer) placeImage(pdf *gopdf.GoPdf, asset document.Asset, y *float64, contentWidth, bottom float64) (float64, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(asset.Data))
	if err != nil {
		return 0, fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, fmt.Errorf("image has zero dimension")
	}

	w := float64(cfg.Width)
	h := float64(cfg.Height)
	maxH := (gopdf.PageSizeA4.H - 2*pageMargin) / 2
	if scale := contentWidth / w; scale < 1 {
		w *= scale
		h *= scale
	}
	if scale := maxH / h; scale < 1 {
		w *= scale
		h *= scale
	}

	if *y+h > bottom {
		pdf.AddPage()
		*y = pageMargin
	}

	holder, err := gopdf.ImageHolderByBytes(asset.Data)
	if err != nil {
		return 0, fmt.Errorf("image holder: %w", err)
	}
	if err := pdf.ImageByHolder(holder, pageMargin, *y, &gopdf.Rect{W: w, H: h}); err != nil {
		return 0, fmt.Errorf("draw image: %w", err)
	}
	return h, nil
}

// wrapText splits text into renderable lines, preserving explicit
// newlines and word-wrapping each paragraph to the content width.
func wrapText(pdf *gopdf.GoPdf, text string, width float64) ([]string, error) {
	var lines []string
	for _, raw := range splitLines(text) {
		if raw == "" {
			lines = append(lines, "")
			continue
		}
		wrapped, err := pdf.SplitTextWithWordWrap(raw, width)
		if err != nil {
			return nil, err
		}
		lines = append(lines, wrapped...)
	}
	return lines, nil
}

func splitLines(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			out = append(out, text[start:i])
			start = i + 1
		}
	}
	return append(out, text[start:])
}

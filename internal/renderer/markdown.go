package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AssetDirPolicy decides what happens when the exported-assets directory
// already exists.
type AssetDirPolicy string

const (
	PolicyOverwrite AssetDirPolicy = "overwrite"
	PolicyFail      AssetDirPolicy = "fail"
	PolicyUniquify  AssetDirPolicy = "uniquify"
)

// MarkdownRenderer flattens the document into a single markdown file
// with per-page headings. Image assets are exported to a sibling
// directory and referenced by relative links.
type MarkdownRenderer struct {
	AssetPolicy AssetDirPolicy

	// now is swapped in tests for reproducible output.
	now func() time.Time
	log *zap.Logger
}

func NewMarkdown(policy AssetDirPolicy, log *zap.Logger) *MarkdownRenderer {
	if policy == "" {
		policy = PolicyOverwrite
	}
	return &MarkdownRenderer{AssetPolicy: policy, now: time.Now, log: log}
}

func (r *MarkdownRenderer) Render(pages []PageContent, outputPath string) error {
	assetDir, err := r.prepareAssetDir(outputPath, pages)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath)))
	fmt.Fprintf(&b, "*Generated %s*\n", r.now().Format("2006-01-02 15:04"))

	for _, page := range pages {
		fmt.Fprintf(&b, "\n## Page %d\n\n", page.Number)

		text := NormalizeMath(page.Text)
		if strings.TrimSpace(text) != "" {
			b.WriteString(text)
			b.WriteString("\n")
		} else if len(page.Assets) > 0 {
			b.WriteString("*This page contains only images.*\n")
		}

		for _, asset := range page.Assets {
			name := fmt.Sprintf("page_%d_img_%d.%s", asset.PageNumber, asset.Index, asset.Format)
			if err := os.WriteFile(filepath.Join(assetDir, name), asset.Data, 0644); err != nil {
				return fmt.Errorf("export asset %s: %w", name, err)
			}
			rel := filepath.ToSlash(filepath.Join(filepath.Base(assetDir), name))
			fmt.Fprintf(&b, "\n![Page %d image %d](%s)\n", asset.PageNumber, asset.Index, rel)
		}
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write markdown %s: %w", outputPath, err)
	}
	return nil
}

// prepareAssetDir resolves and creates the asset directory next to the
// output file. No directory is created when the document has no assets.
func (r *MarkdownRenderer) prepareAssetDir(outputPath string, pages []PageContent) (string, error) {
	hasAssets := false
	for _, p := range pages {
		if len(p.Assets) > 0 {
			hasAssets = true
			break
		}
	}
	if !hasAssets {
		return "", nil
	}

	stem := safeStem(outputPath)
	dir := filepath.Join(filepath.Dir(outputPath), stem+"_assets")

	if _, err := os.Stat(dir); err == nil {
		switch r.AssetPolicy {
		case PolicyFail:
			return "", fmt.Errorf("asset directory already exists: %s", dir)
		case PolicyUniquify:
			base := dir
			for i := 1; ; i++ {
				dir = fmt.Sprintf("%s_%d", base, i)
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					break
				}
			}
		default:
			r.log.Debug("reusing existing asset directory", zap.String("dir", dir))
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create asset directory: %w", err)
	}
	return dir, nil
}

// safeStem sanitizes the output file's stem for use as a directory name.
func safeStem(outputPath string) string {
	stem := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, stem)
}

var (
	displayMathRe = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
	inlineMathRe  = regexp.MustCompile(`\\\((.*?)\\\)`)
)

// NormalizeMath rewrites LaTeX-style math delimiters the model tends to
// emit into the dollar forms markdown viewers understand.
func NormalizeMath(text string) string {
	text = displayMathRe.ReplaceAllString(text, "$$$$${1}$$$$")
	text = inlineMathRe.ReplaceAllString(text, "$$${1}$$")
	return text
}

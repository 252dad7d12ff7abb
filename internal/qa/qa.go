// Package qa is the heuristic quality classifier run over every
// translation before it is accepted. It is rule based: residual
// source-language content, output identical to the input, and leaked
// prompt scaffolding. Findings feed the corrective retry prompt, so each
// issue carries an instruction the model can act on.
package qa

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Flag names a class of detected issue. Flags are persisted with the
// chunk result, so values are stable strings.
type Flag string

const (
	FlagEmpty          Flag = "empty"
	FlagResidualSource Flag = "residual_source"
	FlagUntranslated   Flag = "untranslated"
	FlagPromptLeak     Flag = "prompt_leak"
)

// DefaultResidualThreshold is the maximum tolerated share of
// source-script letters in a translation into a non-Latin script.
const DefaultResidualThreshold = 0.2

// minDetectionRunes guards the language detector: shorter texts produce
// unreliable classifications and are not checked.
const minDetectionRunes = 20

// Issue is one detected problem with a model-facing instruction.
type Issue struct {
	Flag   Flag
	Detail string
}

// Report is the outcome of checking one translation.
type Report struct {
	Issues []Issue
}

// OK reports whether the translation passed every heuristic.
func (r Report) OK() bool {
	return len(r.Issues) == 0
}

// Flags returns the issue flags as plain strings for persistence.
func (r Report) Flags() []string {
	if len(r.Issues) == 0 {
		return nil
	}
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = string(is.Flag)
	}
	return out
}

// Details returns the model-facing instructions for the corrective prompt.
func (r Report) Details() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Detail
	}
	return out
}

// Analyzer checks translations for a fixed language pair. Building the
// language detector is comparatively expensive; reuse the instance.
type Analyzer struct {
	sourceLang string
	targetLang string
	threshold  float64

	detector     lingua.LanguageDetector
	sourceLingua lingua.Language
	// ratioApplies is set when the target script is non-Latin, where a
	// Latin-letter ratio is a meaningful residue signal.
	ratioApplies bool
}

// New builds an Analyzer for the given language pair (names like
// "English", "Chinese" or ISO codes like "en", "zh"). Unknown languages
// degrade gracefully: the detector-based check is skipped.
func New(sourceLang, targetLang string, threshold float64) *Analyzer {
	if threshold <= 0 {
		threshold = DefaultResidualThreshold
	}
	a := &Analyzer{
		sourceLang: sourceLang,
		targetLang: targetLang,
		threshold:  threshold,
	}

	src, srcOK := lookupLanguage(sourceLang)
	tgt, tgtOK := lookupLanguage(targetLang)
	if srcOK && tgtOK && src != tgt {
		a.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(src, tgt).
			Build()
		a.sourceLingua = src
	}
	a.ratioApplies = srcOK && isLatinScript(src) && tgtOK && !isLatinScript(tgt)

	return a
}

// Check classifies a cleaned translation of source. An empty report means
// the chunk can be marked verified.
func (a *Analyzer) Check(source, translated string) Report {
	var r Report
	stripped := strings.TrimSpace(translated)

	if stripped == "" {
		r.Issues = append(r.Issues, Issue{
			Flag:   FlagEmpty,
			Detail: "the translation is empty or whitespace only; produce the full translated text",
		})
		return r
	}

	if a.ratioApplies {
		if ratio := latinLetterRatio(stripped); ratio > a.threshold {
			r.Issues = append(r.Issues, Issue{
				Flag: FlagResidualSource,
				Detail: fmt.Sprintf(
					"the translation still contains %.0f%% %s letters; translate all remaining %s spans into %s",
					ratio*100, a.sourceLang, a.sourceLang, a.targetLang),
			})
		}
	}

	if untranslated, detail := a.looksUntranslated(source, stripped); untranslated {
		r.Issues = append(r.Issues, Issue{Flag: FlagUntranslated, Detail: detail})
	}

	if leak := findPromptLeak(stripped); leak != "" {
		r.Issues = append(r.Issues, Issue{
			Flag: FlagPromptLeak,
			Detail: fmt.Sprintf(
				"the output contains the prompt fragment %q; output only the translation itself", leak),
		})
	}

	return r
}

func (a *Analyzer) looksUntranslated(source, translated string) (bool, string) {
	if strings.TrimSpace(source) == translated {
		return true, "the output is identical to the source text; it was not translated"
	}
	if a.detector == nil || len([]rune(translated)) < minDetectionRunes {
		return false, ""
	}
	if detected, ok := a.detector.DetectLanguageOf(translated); ok && detected == a.sourceLingua {
		return true, fmt.Sprintf(
			"the output still reads as %s; translate it into %s", a.sourceLang, a.targetLang)
	}
	return false, ""
}

// latinLetterRatio returns the share of Latin letters among all
// non-space runes.
func latinLetterRatio(text string) float64 {
	var letters, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Latin, r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

// leakMarkers are prompt fragments that must never survive into output.
// Label markers only count at the start of a line, since words like
// "translation" legitimately occur mid-sentence; the system prompt echo
// is unmistakable anywhere.
var leakMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*translation\s*[:：]`),
	regexp.MustCompile(`(?im)^\s*source text\s*[:：]`),
	regexp.MustCompile(`(?m)^\s*翻译\s*[:：]`),
	regexp.MustCompile(`(?m)^\s*原文\s*[:：]`),
	regexp.MustCompile(`(?i)you are a professional translator`),
}

// findPromptLeak returns the leaked fragment as it appears in the text,
// or "" when the output is clean.
func findPromptLeak(text string) string {
	for _, re := range leakMarkers {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

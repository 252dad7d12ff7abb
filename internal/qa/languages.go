package qa

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// knownLanguages maps the names and ISO 639-1 codes accepted on the
// command line to lingua languages. The pipeline works with any pair of
// strings; this table only gates the detector-backed checks.
var knownLanguages = map[string]lingua.Language{
	"english":    lingua.English,
	"en":         lingua.English,
	"chinese":    lingua.Chinese,
	"zh":         lingua.Chinese,
	"japanese":   lingua.Japanese,
	"ja":         lingua.Japanese,
	"korean":     lingua.Korean,
	"ko":         lingua.Korean,
	"french":     lingua.French,
	"fr":         lingua.French,
	"german":     lingua.German,
	"de":         lingua.German,
	"spanish":    lingua.Spanish,
	"es":         lingua.Spanish,
	"italian":    lingua.Italian,
	"it":         lingua.Italian,
	"portuguese": lingua.Portuguese,
	"pt":         lingua.Portuguese,
	"russian":    lingua.Russian,
	"ru":         lingua.Russian,
	"ukrainian":  lingua.Ukrainian,
	"uk":         lingua.Ukrainian,
	"arabic":     lingua.Arabic,
	"ar":         lingua.Arabic,
	"hindi":      lingua.Hindi,
	"hi":         lingua.Hindi,
	"dutch":      lingua.Dutch,
	"nl":         lingua.Dutch,
	"polish":     lingua.Polish,
	"pl":         lingua.Polish,
	"vietnamese": lingua.Vietnamese,
	"vi":         lingua.Vietnamese,
	"thai":       lingua.Thai,
	"th":         lingua.Thai,
	"turkish":    lingua.Turkish,
	"tr":         lingua.Turkish,
}

func lookupLanguage(name string) (lingua.Language, bool) {
	lang, ok := knownLanguages[strings.ToLower(strings.TrimSpace(name))]
	return lang, ok
}

// nonLatinLanguages are the known languages written in a non-Latin
// script, which makes the Latin-letter ratio a usable residue signal.
var nonLatinLanguages = map[lingua.Language]bool{
	lingua.Chinese:   true,
	lingua.Japanese:  true,
	lingua.Korean:    true,
	lingua.Russian:   true,
	lingua.Ukrainian: true,
	lingua.Arabic:    true,
	lingua.Hindi:     true,
	lingua.Thai:      true,
}

func isLatinScript(lang lingua.Language) bool {
	return !nonLatinLanguages[lang]
}

// Package postprocess scrubs common artifacts from raw model output
// before it reaches the QA classifier: reasoning blocks, echoed prompt
// scaffolding, quote wrapping, and NUL bytes that upset PDF generation.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean returns the translation text with model artifacts removed.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = removeThinkingBlocks(text)
	text = removeEchoedScaffolding(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// thinkingBlockRe matches complete <think>…</think> style reasoning
// blocks. Each tag variant is listed explicitly because RE2 has no
// backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>`,
)

// truncatedThinkingRe matches a reasoning tag whose closing tag never
// arrived (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// echoPatterns match scaffolding the model prepends even when told not
// to: the "Translation:" label from the prompt itself, and chatty
// lead-ins. Anchored to the start of the output.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^translation\s*[:：]`),
	regexp.MustCompile(`^翻译\s*[:：]`),
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:translated |revised |corrected )?(?:translation|text)\s*[:：]?`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the)? (?:translated |revised )?(?:translation|text)\s*[:：]?`),
}

func removeEchoedScaffolding(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// removeQuoteWrapping strips one matching pair of outer quotes when the
// entire output is wrapped in them.
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}

package orchestrator

import (
	"fmt"
	"strings"
)

func systemPrompt(targetLang string) string {
	return fmt.Sprintf(
		"You are a professional translator. Translate the user's text into %s. "+
			"Preserve the original formatting, line breaks, numbers, and technical terms. "+
			"Output only the translation with no explanations, labels, or commentary.",
		targetLang)
}

// revisionPrompt asks the model to fix its previous output. The detected
// issues are listed verbatim so the model knows what to correct.
func revisionPrompt(source, previous, targetLang string, issues []string) string {
	var b strings.Builder
	b.WriteString("Your previous translation of the text below had these problems:\n")
	for _, issue := range issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	b.WriteString("\nOriginal text:\n")
	b.WriteString(source)
	b.WriteString("\n\nYour previous output:\n")
	b.WriteString(previous)
	fmt.Fprintf(&b, "\n\nProvide a corrected translation into %s. Output only the corrected translation.", targetLang)
	return b.String()
}

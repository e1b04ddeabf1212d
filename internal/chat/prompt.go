package chat

import (
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// Placeholders recognized inside a custom prompt template.
const (
	placeholderQuery   = "{user_query}"
	placeholderContext = "{context}"
)

// BuildPrompt constructs the outgoing prompt for one user turn.
//
// With no custom template: zero search results yield the question unchanged;
// otherwise the result contents are concatenated in order, separated by blank
// lines, as a context block followed by the literal question.
//
// A non-empty custom template takes over entirely, with {context} and
// {user_query} substituted.
func BuildPrompt(question string, results []schema.Document, customPrompt string) string {
	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.PageContent)
	}
	contextBlock := strings.Join(contents, "\n\n")

	if customPrompt != "" {
		prompt := strings.ReplaceAll(customPrompt, placeholderQuery, question)
		return strings.ReplaceAll(prompt, placeholderContext, contextBlock)
	}

	if contextBlock == "" {
		return question
	}
	return contextBlock + "\n\n" + question
}

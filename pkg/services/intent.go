package services

import (
	"regexp"
	"strings"

	"github.com/travelgo/chat-engine/pkg/lexicon"
	"github.com/travelgo/chat-engine/pkg/models"
)

// maxKeywordHints bounds the keywords passed on as generator hints.
const maxKeywordHints = 5

var letterRunPattern = regexp.MustCompile(`\p{L}+`)

// ClassifyIntent classifies a message with the default lexicon.
func ClassifyIntent(message string) models.Intent {
	return classifyIntent(lexicon.Default(), message)
}

// classifyIntent tests the sensitive, private and public sets in that order
// and returns the first that has a case-insensitive substring match.
func classifyIntent(lex *lexicon.Lexicon, message string) models.Intent {
	switch {
	case lexicon.ContainsAny(message, lex.Sensitive):
		return models.IntentSensitive
	case lexicon.ContainsAny(message, lex.Private):
		return models.IntentPrivate
	case lexicon.ContainsAny(message, lex.Public):
		return models.IntentPublic
	default:
		return models.IntentUnknown
	}
}

// ExtractKeywords returns the lower-cased alphabetic words of the message that
// are at least three letters long and not stopwords, in message order.
func ExtractKeywords(message string) []string {
	lex := lexicon.Default()
	var keywords []string
	for _, w := range letterRunPattern.FindAllString(strings.ToLower(message), -1) {
		if len([]rune(w)) < 3 || lex.IsStopword(w) {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// keywordHints returns the first few distinct keywords.
func keywordHints(message string) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, w := range ExtractKeywords(message) {
		if seen[w] {
			continue
		}
		seen[w] = true
		hints = append(hints, w)
		if len(hints) == maxKeywordHints {
			break
		}
	}
	return hints
}

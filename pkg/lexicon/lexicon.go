// Package lexicon holds the static keyword sets that drive intent
// classification and message gating. The default lexicon is embedded in the
// binary and parsed once; it is never mutated afterwards.
package lexicon

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/travelgo/chat-engine/pkg/models"
)

//go:embed lexicon.yaml
var defaultYAML []byte

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// EntityTerms are the words that indicate a message talks about one entity kind.
type EntityTerms struct {
	Keywords      []string `yaml:"keywords"`
	DetailPhrases []string `yaml:"detail_phrases"`
}

// Lexicon is the full set of keyword lists.
type Lexicon struct {
	Sensitive       []string                           `yaml:"sensitive"`
	Private         []string                           `yaml:"private"`
	Public          []string                           `yaml:"public"`
	InternalData    []string                           `yaml:"internal_data"`
	Greetings       []string                           `yaml:"greetings"`
	GreetingFillers []string                           `yaml:"greeting_fillers"`
	PII             []string                           `yaml:"pii"`
	Payment         []string                           `yaml:"payment"`
	Detail          []string                           `yaml:"detail"`
	Domain          []string                           `yaml:"domain"`
	Thematic        []string                           `yaml:"thematic"`
	Stopwords       []string                           `yaml:"stopwords"`
	DateRanges      []string                           `yaml:"date_ranges"`
	Entities        map[models.EntityKind]EntityTerms `yaml:"entities"`

	greetingSet map[string]bool
	fillerSet   map[string]bool
	stopwordSet map[string]bool
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
	defaultErr  error
)

// Default returns the embedded lexicon. It panics if the embedded document is
// invalid, which is caught by the package tests.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		defaultLex, defaultErr = Parse(defaultYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("lexicon: invalid embedded lexicon: %v", defaultErr))
	}
	return defaultLex
}

// Parse decodes and validates a lexicon document.
func Parse(data []byte) (*Lexicon, error) {
	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}

	for _, list := range []*[]string{
		&l.Sensitive, &l.Private, &l.Public, &l.InternalData, &l.Greetings,
		&l.GreetingFillers, &l.PII, &l.Payment, &l.Detail, &l.Domain,
		&l.Thematic, &l.Stopwords, &l.DateRanges,
	} {
		*list = normalize(*list)
	}
	for kind, terms := range l.Entities {
		l.Entities[kind] = EntityTerms{
			Keywords:      normalize(terms.Keywords),
			DetailPhrases: normalize(terms.DetailPhrases),
		}
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	l.greetingSet = toSet(l.Greetings)
	l.fillerSet = toSet(l.GreetingFillers)
	l.stopwordSet = toSet(l.Stopwords)
	return &l, nil
}

// Validate checks that the intent sets are present and pairwise disjoint and
// that every gated entity kind has keywords.
func (l *Lexicon) Validate() error {
	if len(l.Sensitive) == 0 || len(l.Private) == 0 || len(l.Public) == 0 {
		return fmt.Errorf("sensitive, private and public sets must not be empty")
	}

	seen := make(map[string]string)
	for name, list := range map[string][]string{
		"sensitive": l.Sensitive,
		"private":   l.Private,
		"public":    l.Public,
	} {
		for _, w := range list {
			if other, ok := seen[w]; ok && other != name {
				return fmt.Errorf("keyword %q appears in both %s and %s", w, other, name)
			}
			seen[w] = name
		}
	}

	for _, kind := range models.GatedEntityKinds {
		if len(l.Entities[kind].Keywords) == 0 {
			return fmt.Errorf("entity %q has no keywords", kind)
		}
	}
	return nil
}

// IsGreetingOnly reports whether every word of the message is a greeting or a
// greeting filler, with at least one actual greeting.
func (l *Lexicon) IsGreetingOnly(message string) bool {
	tokens := Tokens(message)
	if len(tokens) == 0 {
		return false
	}
	greeted := false
	for _, tok := range tokens {
		switch {
		case l.greetingSet[tok]:
			greeted = true
		case l.fillerSet[tok]:
		default:
			return false
		}
	}
	return greeted
}

// IsStopword reports whether w is ignored during keyword extraction.
func (l *Lexicon) IsStopword(w string) bool {
	return l.stopwordSet[strings.ToLower(w)]
}

// ContainsAny reports whether any term occurs as a substring of text,
// ignoring case.
func ContainsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// ContainsAnyPhrase reports whether any term occurs in text starting at a word
// boundary. Suffixes are allowed so that "email" matches "emailnya".
func ContainsAnyPhrase(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if hasPhrase(lower, t) {
			return true
		}
	}
	return false
}

// Tokens splits text into lower-cased letter/digit runs.
func Tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func hasPhrase(lower, phrase string) bool {
	return len(phraseOffsets(lower, phrase, 1)) > 0
}

// PhraseOffsets returns the byte offsets in the lower-cased text at which any
// of terms starts on a word boundary, in ascending order per term.
func PhraseOffsets(text string, terms []string) []Span {
	lower := strings.ToLower(text)
	var spans []Span
	for _, t := range terms {
		for _, pos := range phraseOffsets(lower, t, -1) {
			spans = append(spans, Span{Start: pos, End: pos + len(t)})
		}
	}
	return spans
}

// Span is a byte range of a matched phrase.
type Span struct {
	Start int
	End   int
}

// phraseOffsets returns up to limit word-boundary starts of phrase; a
// negative limit returns all of them.
func phraseOffsets(lower, phrase string, limit int) []int {
	if phrase == "" {
		return nil
	}
	var out []int
	offset := 0
	for limit < 0 || len(out) < limit {
		idx := strings.Index(lower[offset:], phrase)
		if idx < 0 {
			break
		}
		pos := offset + idx
		prev, _ := utf8.DecodeLastRuneInString(lower[:pos])
		if pos == 0 || (!unicode.IsLetter(prev) && !unicode.IsDigit(prev)) {
			out = append(out, pos)
		}
		offset = pos + len(phrase)
	}
	return out
}

func normalize(list []string) []string {
	out := make([]string, 0, len(list))
	for _, w := range list {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, w := range list {
		set[w] = true
	}
	return set
}

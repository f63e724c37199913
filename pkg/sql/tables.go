package sql

import (
	"strings"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenString
	tokenNumber
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) isWord(w string) bool {
	return t.kind == tokenWord && t.text == w
}

func (t token) isPunct(p string) bool {
	return t.kind == tokenPunct && t.text == p
}

func (t token) isIdent() bool {
	return t.kind == tokenWord || t.kind == tokenQuoted
}

// Functions whose argument syntax uses FROM without naming a table.
var fromTakingFunctions = map[string]bool{
	"extract":   true,
	"substring": true,
	"trim":      true,
	"overlay":   true,
	"position":  true,
}

// Words that end a FROM item instead of aliasing it.
var clauseWords = map[string]bool{
	"where": true, "join": true, "inner": true, "left": true, "right": true,
	"full": true, "outer": true, "cross": true, "natural": true, "on": true,
	"using": true, "group": true, "order": true, "having": true, "limit": true,
	"offset": true, "union": true, "intersect": true, "except": true,
	"window": true, "fetch": true, "for": true, "as": true, "select": true,
	"from": true, "and": true, "or": true, "lateral": true, "tablesample": true,
	"returning": true, "into": true, "values": true, "top": true, "with": true,
}

// ExtractTables returns the lower-cased names of every table referenced after
// FROM, JOIN or TABLE, in order of first appearance. Comma-separated FROM
// lists are followed, quoted identifiers are unquoted, and names defined by
// WITH clauses are excluded. Schema-qualified names are kept qualified.
func ExtractTables(sqlText string) []string {
	toks := tokenize(sqlText)
	ctes := cteNames(toks)

	var tables []string
	seen := make(map[string]bool)
	record := func(name string) {
		if ctes[name] || seen[name] {
			return
		}
		seen[name] = true
		tables = append(tables, name)
	}

	// Each open paren records whether FROM inside it belongs to a function call.
	var parens []bool
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.isPunct("("):
			fn := i > 0 && toks[i-1].kind == tokenWord && fromTakingFunctions[toks[i-1].text]
			parens = append(parens, fn)
		case t.isPunct(")"):
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
		case t.isWord("from"):
			if len(parens) > 0 && parens[len(parens)-1] {
				continue
			}
			i = readFromList(toks, i+1, record)
		case t.isWord("join"), t.isWord("table"):
			i = readFromList(toks, i+1, record)
		}
	}
	return tables
}

// unknownTable is recorded when a FROM item cannot be read as a plain name,
// which makes the whitelist check fail.
const unknownTable = "?"

// readFromList consumes table references starting at j and returns the index
// of the last consumed token.
func readFromList(toks []token, j int, record func(string)) int {
	for j < len(toks) {
		name, next, ok := readTableName(toks, j)
		if !ok {
			if !toks[j].isPunct("(") && !(toks[j].kind == tokenWord && clauseWords[toks[j].text]) {
				record(unknownTable)
			}
			return j - 1
		}
		record(name)
		j = next

		if j < len(toks) && toks[j].isWord("as") {
			j++
			if j < len(toks) && toks[j].isIdent() {
				j++
			}
		} else if j < len(toks) && toks[j].isIdent() && !(toks[j].kind == tokenWord && clauseWords[toks[j].text]) {
			j++
		}

		if j < len(toks) && toks[j].isPunct(",") {
			j++
			continue
		}
		return j - 1
	}
	return j - 1
}

// readTableName reads a possibly schema-qualified name at j. Bracketed SQL
// Server identifiers are accepted only in the simple [name] form.
func readTableName(toks []token, j int) (string, int, bool) {
	part := func(j int) (string, int, bool) {
		if j >= len(toks) {
			return "", j, false
		}
		if toks[j].isIdent() && !(toks[j].kind == tokenWord && clauseWords[toks[j].text]) {
			return toks[j].text, j + 1, true
		}
		if toks[j].isPunct("[") && j+2 < len(toks) && toks[j+1].isIdent() && toks[j+2].isPunct("]") {
			return toks[j+1].text, j + 3, true
		}
		return "", j, false
	}

	name, j, ok := part(j)
	if !ok {
		return "", j, false
	}
	for j < len(toks) && toks[j].isPunct(".") {
		next, k, ok := part(j + 1)
		if !ok {
			return name + "." + unknownTable, j + 1, true
		}
		name += "." + next
		j = k
	}
	return name, j, true
}

// cteNames collects the names defined by a leading WITH clause.
func cteNames(toks []token) map[string]bool {
	names := make(map[string]bool)
	if len(toks) == 0 || !toks[0].isWord("with") {
		return names
	}
	i := 1
	if i < len(toks) && toks[i].isWord("recursive") {
		i++
	}
	for i < len(toks) && toks[i].isIdent() {
		name := toks[i].text
		i++
		if i < len(toks) && toks[i].isPunct("(") {
			i = skipParens(toks, i)
		}
		if i >= len(toks) || !toks[i].isWord("as") {
			return names
		}
		i++
		for i < len(toks) && (toks[i].isWord("not") || toks[i].isWord("materialized")) {
			i++
		}
		if i >= len(toks) || !toks[i].isPunct("(") {
			return names
		}
		names[name] = true
		i = skipParens(toks, i)
		if i < len(toks) && toks[i].isPunct(",") {
			i++
			continue
		}
		break
	}
	return names
}

// skipParens returns the index just past the paren group opening at i.
func skipParens(toks []token, i int) int {
	depth := 0
	for ; i < len(toks); i++ {
		switch {
		case toks[i].isPunct("("):
			depth++
		case toks[i].isPunct(")"):
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

// tokenize splits SQL into lower-cased words, quoted identifiers, string
// literals, numbers and single-character punctuation.
func tokenize(sqlText string) []token {
	s := strings.ToLower(sqlText)
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			end := scanQuoted(s, i, '\'')
			toks = append(toks, token{kind: tokenString, text: s[i:end]})
			i = end
		case c == '"' || c == '`':
			end := scanQuoted(s, i, c)
			toks = append(toks, token{kind: tokenQuoted, text: unquote(s[i:end], c)})
			i = end
		case isWordStart(c):
			start := i
			for i < len(s) && isWordPart(s[i]) {
				i++
			}
			toks = append(toks, token{kind: tokenWord, text: s[start:i]})
		case c >= '0' && c <= '9':
			start := i
			for i < len(s) && ((s[i] >= '0' && s[i] <= '9') || s[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokenNumber, text: s[start:i]})
		default:
			toks = append(toks, token{kind: tokenPunct, text: string(c)})
			i++
		}
	}
	return toks
}

// scanQuoted returns the index just past the closing quote, treating a doubled
// quote as an escaped one. Unterminated literals run to the end of input.
func scanQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func unquote(s string, quote byte) string {
	s = strings.TrimPrefix(s, string(quote))
	s = strings.TrimSuffix(s, string(quote))
	return strings.ReplaceAll(s, string([]byte{quote, quote}), string(quote))
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == '$'
}

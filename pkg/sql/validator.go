// Package sql validates generator-proposed SQL before it reaches the store.
// Validation is lexical and conservative: a query that cannot be shown to be a
// single read-only statement over whitelisted tables is rejected.
package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/travelgo/chat-engine/pkg/apperrors"
)

// DefaultAllowedTables are the tables generator queries may read.
var DefaultAllowedTables = []string{
	"promos",
	"trips",
	"blogs",
	"trip_schedules",
	"trip_facilities",
	"trip_itineraries",
	"reviews",
}

// Rule identifies which validation rule rejected a query.
type Rule string

const (
	RuleEmpty             Rule = "empty"
	RuleMultipleStatement Rule = "multiple_statements"
	RuleNotSelect         Rule = "not_select"
	RuleComment           Rule = "comment"
	RuleEscape            Rule = "escape"
	RuleWriteKeyword      Rule = "write_keyword"
	RuleForbiddenFunction Rule = "forbidden_function"
	RuleNoTables          Rule = "no_tables"
	RuleTableNotAllowed   Rule = "table_not_allowed"
)

// RejectionError explains why a candidate query was rejected.
type RejectionError struct {
	Rule   Rule
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("query rejected: %s", e.Rule)
	}
	return fmt.Sprintf("query rejected: %s (%s)", e.Rule, e.Detail)
}

// Unwrap lets callers match rejections with errors.Is(err, apperrors.ErrQueryRejected).
func (e *RejectionError) Unwrap() error {
	return apperrors.ErrQueryRejected
}

func reject(rule Rule, detail string) error {
	return &RejectionError{Rule: rule, Detail: detail}
}

// CandidateQuery is an untrusted query proposed by the generator, tagged with
// the table its author claims it reads.
type CandidateQuery struct {
	Table string `json:"table"`
	SQL   string `json:"sql"`
}

// ValidatedQuery is a query that passed every rule. Values can only be built
// by QueryValidator.Validate.
type ValidatedQuery struct {
	sql    string
	table  string
	tables []string
}

// SQL returns the statement text.
func (q ValidatedQuery) SQL() string { return q.sql }

// Table returns the main table, the first table the statement reads.
func (q ValidatedQuery) Table() string { return q.table }

// Tables returns every table the statement reads, in order of appearance.
func (q ValidatedQuery) Tables() []string {
	out := make([]string, len(q.tables))
	copy(out, q.tables)
	return out
}

var (
	writeKeywordPattern = regexp.MustCompile(
		`\b(update|insert|delete|drop|alter|truncate|create|grant|revoke|into|copy|merge|call|exec|execute)\b`)

	leadingKeywordPattern = regexp.MustCompile(`^[a-z]+`)

	// Functions that read files, other databases or query strings.
	forbiddenFunctionPattern = regexp.MustCompile(
		`\b(pg_[a-z_]*|dblink[a-z_]*|lo_[a-z_]+|[a-z_]*_to_xml[a-z_]*|current_setting|set_config|openrowset|opendatasource|openquery|xp_[a-z_]+|sp_[a-z_]+)\s*\(`)
)

// QueryValidator checks candidate queries against a fixed table whitelist.
// It is immutable after construction and safe for concurrent use.
type QueryValidator struct {
	allowed map[string]bool
	tables  []string
}

// NewQueryValidator creates a validator for the given whitelist.
func NewQueryValidator(allowedTables []string) *QueryValidator {
	v := &QueryValidator{allowed: make(map[string]bool, len(allowedTables))}
	for _, t := range allowedTables {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || v.allowed[t] {
			continue
		}
		v.allowed[t] = true
		v.tables = append(v.tables, t)
	}
	return v
}

// AllowedTables returns the whitelist in declaration order.
func (v *QueryValidator) AllowedTables() []string {
	out := make([]string, len(v.tables))
	copy(out, v.tables)
	return out
}

// Validate applies every rule to the candidate. The claimed table is ignored;
// the tables are taken from the statement itself.
func (v *QueryValidator) Validate(c CandidateQuery) (ValidatedQuery, error) {
	sqlText := strings.TrimSpace(c.SQL)
	if sqlText == "" {
		return ValidatedQuery{}, reject(RuleEmpty, "")
	}

	if strings.Contains(sqlText, ";") {
		return ValidatedQuery{}, reject(RuleMultipleStatement, "")
	}

	lower := strings.ToLower(sqlText)

	for _, marker := range []string{"--", "/*", "*/"} {
		if strings.Contains(lower, marker) {
			return ValidatedQuery{}, reject(RuleComment, marker)
		}
	}

	// Backslash escapes and dollar quoting change where literals end.
	for _, marker := range []string{`\`, "$"} {
		if strings.Contains(lower, marker) {
			return ValidatedQuery{}, reject(RuleEscape, marker)
		}
	}

	lead := leadingKeywordPattern.FindString(lower)
	if lead != "select" && lead != "with" {
		return ValidatedQuery{}, reject(RuleNotSelect, lead)
	}

	if m := writeKeywordPattern.FindString(lower); m != "" {
		return ValidatedQuery{}, reject(RuleWriteKeyword, m)
	}

	if m := forbiddenFunctionPattern.FindStringSubmatch(lower); m != nil {
		return ValidatedQuery{}, reject(RuleForbiddenFunction, m[1])
	}

	tables := ExtractTables(sqlText)
	if len(tables) == 0 {
		return ValidatedQuery{}, reject(RuleNoTables, "")
	}
	for _, t := range tables {
		if !v.allowed[t] {
			return ValidatedQuery{}, reject(RuleTableNotAllowed, t)
		}
	}

	return ValidatedQuery{sql: sqlText, table: tables[0], tables: tables}, nil
}

package adb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrQueryRejected marks statements refused before reaching the database.
var ErrQueryRejected = errors.New("query rejected")

// DefaultBlockedKeywords statements the query tool never runs
var DefaultBlockedKeywords = []string{"DROP", "TRUNCATE", "ALTER", "CREATE", "GRANT", "REVOKE"}

var allowedStatements = map[string]bool{
	"SELECT": true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"WITH":   true,
}

var readStatements = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"PRAGMA":  true,
	"EXPLAIN": true,
	"VALUES":  true,
}

var (
	// string literals and comments, matched left to right
	tokenPattern      = regexp.MustCompile(`(?s)'(?:[^']|'')*'|/\*.*?\*/|--[^\n]*`)
	wherePattern      = regexp.MustCompile(`(?i)\bWHERE\b`)
	fetchFirstPattern = regexp.MustCompile(`(?i)\s+FETCH\s+(?:FIRST|NEXT)\s+(\d+)\s+ROWS?\s+ONLY`)
	fromDualPattern   = regexp.MustCompile(`(?i)\s+FROM\s+DUAL\b`)
	sysdatePattern    = regexp.MustCompile(`(?i)\b(?:SYSDATE|SYSTIMESTAMP)\b`)
	nvlPattern        = regexp.MustCompile(`(?i)\bNVL\s*\(`)
)

// stripSQL removes comments and string literals so keyword checks only see
// statement text.
func stripSQL(query string) string {
	s := tokenPattern.ReplaceAllStringFunc(query, func(tok string) string {
		if tok[0] == '\'' {
			return "''"
		}
		return " "
	})
	return strings.TrimSpace(s)
}

// rewriteCode applies fn to the statement text between literals and
// comments, leaving those untouched.
func rewriteCode(query string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for _, loc := range tokenPattern.FindAllStringIndex(query, -1) {
		b.WriteString(fn(query[last:loc[0]]))
		b.WriteString(query[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(query[last:]))
	return b.String()
}

// StatementType returns the leading keyword of a statement in upper case.
func StatementType(query string) string {
	s := strings.TrimLeft(stripSQL(query), "( \t\r\n")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimRight(fields[0], ";("))
}

// IsReadStatement reports whether the statement returns rows.
func IsReadStatement(query string) bool {
	return readStatements[StatementType(query)]
}

// Validate checks a statement before it is handed to the query tool.
func Validate(query string, maxLen int, blocked []string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrQueryRejected)
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return fmt.Errorf("%w: query exceeds maximum length of %d characters", ErrQueryRejected, maxLen)
	}

	body := strings.TrimRight(stripSQL(trimmed), "; \t\r\n")
	if strings.Contains(body, ";") {
		return fmt.Errorf("%w: multiple statements are not allowed", ErrQueryRejected)
	}

	if blocked == nil {
		blocked = DefaultBlockedKeywords
	}
	upper := strings.ToUpper(body)
	for _, kw := range blocked {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`).MatchString(upper) {
			return fmt.Errorf("%w: dangerous operation '%s' is not allowed", ErrQueryRejected, kw)
		}
	}

	stmtType := StatementType(trimmed)
	if !allowedStatements[stmtType] {
		return fmt.Errorf("%w: only SELECT, INSERT, UPDATE, DELETE and WITH statements are allowed", ErrQueryRejected)
	}
	if (stmtType == "DELETE" || stmtType == "UPDATE") && !wherePattern.MatchString(body) {
		return fmt.Errorf("%w: %s requires a WHERE clause", ErrQueryRejected, stmtType)
	}
	return nil
}

// Translate rewrites the Oracle constructs the demo accepts into sqlite SQL.
// String literals and comments are left as written.
func Translate(query string) string {
	return rewriteCode(query, func(q string) string {
		q = fetchFirstPattern.ReplaceAllString(q, " LIMIT $1")
		q = fromDualPattern.ReplaceAllString(q, "")
		q = sysdatePattern.ReplaceAllString(q, "CURRENT_TIMESTAMP")
		return nvlPattern.ReplaceAllString(q, "IFNULL(")
	})
}

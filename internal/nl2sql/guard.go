package nl2sql

import (
	"fmt"
	"strings"
)

type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string {
	return "generated text is not a read-only query: " + e.Reason
}

var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "create": {}, "alter": {},
	"truncate": {}, "merge": {}, "grant": {}, "revoke": {}, "attach": {}, "detach": {},
	"pragma": {}, "copy": {}, "export": {}, "import": {}, "install": {}, "load": {},
	"call": {}, "vacuum": {}, "into": {}, "checkpoint": {},
}

// Functions that reach the filesystem, extensions or the server process.
// Names with a file-reader prefix or a scanner suffix are rejected as well,
// see isForbiddenFunction.
var forbiddenFunctions = map[string]struct{}{
	"glob": {}, "sniff_csv": {}, "load_extension": {}, "getenv": {},
	"parquet_metadata": {}, "parquet_schema": {}, "parquet_file_metadata": {},
	"parquet_kv_metadata": {}, "parquet_bloom_probe": {}, "st_read": {},
	"sqlite_attach": {}, "postgres_attach": {}, "postgres_query": {},
	"mysql_query": {}, "query_table": {}, "query": {}, "duckdb_secrets": {},
	"readfile": {}, "writefile": {}, "pg_read_file": {}, "pg_read_binary_file": {},
	"pg_ls_dir": {}, "pg_stat_file": {}, "pg_sleep": {}, "lo_import": {},
	"lo_export": {}, "dblink": {},
}

var forbiddenFunctionPrefixes = []string{"read_", "pg_read_", "pg_ls_"}

var forbiddenFunctionSuffixes = []string{"_scan", "_attach"}

// Words that end a FROM clause for the purpose of spotting file scans such
// as FROM '/etc/passwd'.
var fromClauseTerminators = map[string]struct{}{
	"where": {}, "group": {}, "order": {}, "having": {}, "limit": {}, "union": {},
	"on": {}, "using": {}, "select": {}, "window": {}, "qualify": {}, "except": {},
	"intersect": {}, "offset": {},
}

// Guard accepts exactly one read-only SELECT statement and returns it with
// markdown fences and trailing semicolons removed.
func Guard(text string) (string, error) {
	sqlText := stripTrailingSemicolons(stripMarkdownSQL(text))
	if sqlText == "" {
		return "", &GuardError{Reason: "empty output"}
	}

	tokens, err := scanSQL(sqlText)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 || tokens[0].kind != tokenWord || tokens[0].text != "select" || tokens[0].pos != 0 {
		return "", &GuardError{Reason: "statement must start with SELECT"}
	}

	inFrom := false
	for i, tok := range tokens {
		switch tok.kind {
		case tokenSemicolon:
			return "", &GuardError{Reason: "multiple statements are not allowed"}
		case tokenWord:
			if _, ok := forbiddenKeywords[tok.text]; ok {
				return "", &GuardError{Reason: fmt.Sprintf("keyword %q is not allowed", strings.ToUpper(tok.text))}
			}
			if isForbiddenFunction(tok.text) && nextIs(tokens, i, tokenOpenParen) {
				return "", &GuardError{Reason: fmt.Sprintf("function %q is not allowed", tok.text)}
			}
			switch {
			case tok.text == "from" || tok.text == "join":
				inFrom = true
			case isFromTerminator(tok.text):
				inFrom = false
			}
		case tokenQuotedIdent:
			// DuckDB and PostgreSQL resolve "read_text"(...) to the same
			// function as the bare name.
			name := unquoteIdent(tok.text)
			if isForbiddenFunction(name) && nextIs(tokens, i, tokenOpenParen) {
				return "", &GuardError{Reason: fmt.Sprintf("function %q is not allowed", name)}
			}
		case tokenString:
			if inFrom && i > 0 && startsRelation(tokens[i-1]) {
				return "", &GuardError{Reason: "reading from files is not allowed"}
			}
		}
	}
	return sqlText, nil
}

func isForbiddenFunction(name string) bool {
	if _, ok := forbiddenFunctions[name]; ok {
		return true
	}
	for _, prefix := range forbiddenFunctionPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for _, suffix := range forbiddenFunctionSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// unquoteIdent turns "Read_Text" or `read_text` into read_text. Quoted
// identifiers are case-sensitive in PostgreSQL but DuckDB and SQLite
// match function names case-insensitively, so the check is too.
func unquoteIdent(text string) string {
	if len(text) < 2 {
		return strings.ToLower(text)
	}
	quote := text[:1]
	inner := text[1 : len(text)-1]
	return strings.ToLower(strings.ReplaceAll(inner, quote+quote, quote))
}

func isFromTerminator(word string) bool {
	_, ok := fromClauseTerminators[word]
	return ok
}

func startsRelation(prev sqlToken) bool {
	if prev.kind == tokenComma {
		return true
	}
	return prev.kind == tokenWord && (prev.text == "from" || prev.text == "join")
}

func nextIs(tokens []sqlToken, i int, kind tokenKind) bool {
	return i+1 < len(tokens) && tokens[i+1].kind == kind
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenString
	tokenQuotedIdent
	tokenNumber
	tokenComma
	tokenOpenParen
	tokenSemicolon
	tokenOther
)

type sqlToken struct {
	kind tokenKind
	text string
	pos  int
}

// scanSQL is a lexer, not a parser: it only needs to tell keywords apart
// from literals, quoted identifiers and comments.
func scanSQL(s string) ([]sqlToken, error) {
	var tokens []sqlToken
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				i = len(s)
			} else {
				i += end + 1
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return nil, &GuardError{Reason: "unterminated comment"}
			}
			i += 2 + end + 2
		case c == '\'':
			end, ok := scanQuoted(s, i, '\'')
			if !ok {
				return nil, &GuardError{Reason: "unterminated string literal"}
			}
			tokens = append(tokens, sqlToken{kind: tokenString, text: s[i:end], pos: i})
			i = end
		case c == '"' || c == '`':
			end, ok := scanQuoted(s, i, c)
			if !ok {
				return nil, &GuardError{Reason: "unterminated quoted identifier"}
			}
			tokens = append(tokens, sqlToken{kind: tokenQuotedIdent, text: s[i:end], pos: i})
			i = end
		case isWordStart(c):
			start := i
			for i < len(s) && isWordPart(s[i]) {
				i++
			}
			tokens = append(tokens, sqlToken{kind: tokenWord, text: strings.ToLower(s[start:i]), pos: start})
		case c >= '0' && c <= '9':
			start := i
			for i < len(s) && (isWordPart(s[i]) || s[i] == '.') {
				i++
			}
			tokens = append(tokens, sqlToken{kind: tokenNumber, text: s[start:i], pos: start})
		case c == ',':
			tokens = append(tokens, sqlToken{kind: tokenComma, text: ",", pos: i})
			i++
		case c == '(':
			tokens = append(tokens, sqlToken{kind: tokenOpenParen, text: "(", pos: i})
			i++
		case c == ';':
			tokens = append(tokens, sqlToken{kind: tokenSemicolon, text: ";", pos: i})
			i++
		default:
			tokens = append(tokens, sqlToken{kind: tokenOther, text: string(c), pos: i})
			i++
		}
	}
	return tokens, nil
}

// scanQuoted returns the index just past the closing quote. A doubled quote
// is an escaped quote character.
func scanQuoted(s string, start int, quote byte) (int, bool) {
	i := start + 1
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		}
		i++
	}
	return 0, false
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == '$'
}

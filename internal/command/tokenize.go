package command

import (
	"strings"
	"unicode"
)

// tokenize splits an argument line on top-level whitespace. Whitespace inside
// single or double quotes or inside balanced {}, [] or () stays part of the
// token, and a backslash escapes the next character. Quotes and brackets are
// preserved in the returned tokens; unquote strips them later, per type.
func tokenize(input string) []string {
	var tokens []string
	var cur strings.Builder

	var quote rune
	depth := 0 // combined {} [] () nesting
	escaped := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range input {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case r == '{' || r == '[' || r == '(':
			depth++
			cur.WriteRune(r)
		case r == '}' || r == ']' || r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case unicode.IsSpace(r) && depth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// splitNamed splits a token at its first top-level '=' (outside quotes and
// brackets). Returns ok=false for purely positional tokens.
func splitNamed(token string) (name, value string, ok bool) {
	var quote rune
	depth := 0
	escaped := false
	for i, r := range token {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '{' || r == '[' || r == '(':
			depth++
		case r == '}' || r == ']' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == '=' && depth == 0:
			if i == 0 {
				return "", "", false
			}
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}

// unquote strips a single pair of matching outer quotes and resolves
// backslash escapes. Unquoted input is returned with escapes resolved only.
func unquote(token string) string {
	if len(token) >= 2 {
		first := token[0]
		last := token[len(token)-1]
		if (first == '"' || first == '\'') && first == last {
			token = token[1 : len(token)-1]
		}
	}
	if !strings.ContainsRune(token, '\\') {
		return token
	}
	var b strings.Builder
	escaped := false
	for _, r := range token {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String()
}

package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/schema"
)

// ParseArgs turns a command's trailing argument string into the tool's
// argument map. Three styles, detected in order:
//
//  1. JSON literal: input starts with '{' or '['. An object becomes the
//     argument map; an array or scalar is wrapped as {"value": ...}.
//  2. Named: some token contains an unquoted '='. Every token must then be
//     name=value; values are coerced by the schema type of their name.
//  3. Positional: tokens are assigned in property declaration order.
//
// Parse or coercion failures return an error; the command layer reports them
// without issuing an RPC.
func ParseArgs(input string, s *schema.Schema) (map[string]any, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		return parseJSONStyle(trimmed)
	}

	tokens := tokenize(trimmed)
	for _, tok := range tokens {
		if _, _, ok := splitNamed(tok); ok {
			return parseNamedStyle(tokens, s)
		}
	}
	return parsePositionalStyle(tokens, s)
}

func parseJSONStyle(input string) (map[string]any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(input), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if obj, ok := parsed.(map[string]any); ok {
		return obj, nil
	}
	return map[string]any{"value": parsed}, nil
}

func parseNamedStyle(tokens []string, s *schema.Schema) (map[string]any, error) {
	args := make(map[string]any, len(tokens))
	for _, tok := range tokens {
		name, value, ok := splitNamed(tok)
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", tok)
		}
		coerced, err := coerce(value, s.PropertyType(name))
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		args[name] = coerced
	}
	return args, nil
}

func parsePositionalStyle(tokens []string, s *schema.Schema) (map[string]any, error) {
	names := s.PropertyNames()
	if len(tokens) > len(names) {
		return nil, fmt.Errorf("too many arguments: got %d, tool takes %d", len(tokens), len(names))
	}
	args := make(map[string]any, len(tokens))
	for i, tok := range tokens {
		coerced, err := coerce(tok, s.PropertyType(names[i]))
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", names[i], err)
		}
		args[names[i]] = coerced
	}
	return args, nil
}

// coerce converts one raw token by the declared schema type.
func coerce(token, typ string) (any, error) {
	switch typ {
	case "integer":
		return parseInt(unquote(token))
	case "number":
		v, err := strconv.ParseFloat(unquote(token), 64)
		if err != nil {
			// Hex integers are accepted for number parameters too.
			if i, ierr := parseInt(unquote(token)); ierr == nil {
				return float64(i), nil
			}
			return nil, fmt.Errorf("invalid number %q", token)
		}
		return v, nil
	case "boolean":
		return parseBool(unquote(token))
	case "array", "object":
		var parsed any
		if err := json.Unmarshal([]byte(token), &parsed); err != nil {
			return nil, fmt.Errorf("invalid %s JSON %q: %w", typ, token, err)
		}
		return parsed, nil
	default:
		return unquote(token), nil
	}
}

// parseInt accepts decimal and 0x-prefixed hexadecimal integers.
func parseInt(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid hex integer %q", s)
		}
		return v, nil
	}
	if strings.HasPrefix(s, "-0x") || strings.HasPrefix(s, "-0X") {
		v, err := strconv.ParseInt(s[3:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid hex integer %q", s)
		}
		return -v, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// MissingRequired returns the required parameter names absent from args, in
// required-list order.
func MissingRequired(args map[string]any, s *schema.Schema) []string {
	var missing []string
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Usage renders the parameter summary in property declaration order:
// "<name:type>" for required, "[name:type]" for optional.
func Usage(s *schema.Schema) string {
	var parts []string
	for _, name := range s.PropertyNames() {
		typ := s.PropertyType(name)
		if s.IsRequired(name) {
			parts = append(parts, fmt.Sprintf("<%s:%s>", name, typ))
		} else {
			parts = append(parts, fmt.Sprintf("[%s:%s]", name, typ))
		}
	}
	return strings.Join(parts, " ")
}

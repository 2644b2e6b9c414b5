// Package gemini bridges the MCP fleet to the Gemini API: tool schemas
// become function declarations, a routing table maps function names back to
// (server, tool), and the execution loop drives the manual function-calling
// conversation.
package gemini

import (
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/schema"
)

const (
	// maxSegmentLen caps each sanitized name segment (server or tool).
	maxSegmentLen = 32
	// maxFunctionNameLen is the API limit for declared function names.
	maxFunctionNameLen = 64
)

// route identifies the executor of a declared function.
type route struct {
	Server string
	Tool   string
}

// Bridge owns the function-name routing table. It must outlive individual
// LLM invocations so the same (server, tool) keeps the same function name
// across calls.
type Bridge struct {
	mu     sync.RWMutex
	routes map[string]route // function name → target
	names  map[route]string // target → function name
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		routes: make(map[string]route),
		names:  make(map[route]string),
	}
}

// FunctionName returns the stable, collision-free function name for a
// (server, tool) pair, creating and recording it on first use.
func (b *Bridge) FunctionName(server, tool string) string {
	target := route{Server: server, Tool: tool}

	b.mu.Lock()
	defer b.mu.Unlock()

	if name, ok := b.names[target]; ok {
		return name
	}

	base := sanitizeSegment(server) + "_" + sanitizeSegment(tool)
	if len(base) > maxFunctionNameLen {
		base = base[:maxFunctionNameLen]
	}

	name := base
	for i := 1; ; i++ {
		existing, taken := b.routes[name]
		if !taken {
			break
		}
		if existing == target {
			return name
		}
		suffix := fmt.Sprintf("_%d", i)
		name = base
		if len(name)+len(suffix) > maxFunctionNameLen {
			name = name[:maxFunctionNameLen-len(suffix)]
		}
		name += suffix
	}

	b.routes[name] = target
	b.names[target] = name
	return name
}

// Resolve maps a function name back to its (server, tool) target. Names not
// in the table fall back to a strict split at the first underscore.
func (b *Bridge) Resolve(functionName string) (server, tool string, ok bool) {
	b.mu.RLock()
	target, found := b.routes[functionName]
	b.mu.RUnlock()
	if found {
		return target.Server, target.Tool, true
	}

	i := strings.Index(functionName, "_")
	if i <= 0 || i == len(functionName)-1 {
		return "", "", false
	}
	return functionName[:i], functionName[i+1:], true
}

// Len reports the number of routed function names.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.routes)
}

// sanitizeSegment rewrites a server or tool name into the function-name
// charset: characters outside [A-Za-z0-9_.-] become '_', runs of '_'
// collapse, a leading character that is neither letter nor '_' gets a '_'
// prefix, and the segment is capped.
func sanitizeSegment(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		ok := r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		out = "_"
	}
	first := out[0]
	isLetter := (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')
	if !isLetter && first != '_' {
		out = "_" + out
	}
	if len(out) > maxSegmentLen {
		out = out[:maxSegmentLen]
	}
	return out
}

// Declaration converts one tool into a Gemini function declaration and
// records its routing.
func (b *Bridge) Declaration(server string, tool mcp.ToolInfo) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        b.FunctionName(server, tool.Name),
		Description: tool.Description,
		Parameters:  toGenaiSchema(tool.Schema, true),
	}
}

// toGenaiSchema is a pure tree walk from the MCP schema subset to the Gemini
// schema type. The root always resolves to an object schema.
func toGenaiSchema(s *schema.Schema, root bool) *genai.Schema {
	if s == nil {
		if root {
			return &genai.Schema{Type: genai.TypeObject}
		}
		return nil
	}

	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Title:       s.Title,
		Format:      s.Format,
		Default:     s.Default,
		Example:     s.Example,

		Required:         append([]string(nil), s.Required...),
		PropertyOrdering: append([]string(nil), s.PropertyOrdering...),

		Minimum:       s.Minimum,
		Maximum:       s.Maximum,
		MinItems:      s.MinItems,
		MaxItems:      s.MaxItems,
		MinLength:     s.MinLength,
		MaxLength:     s.MaxLength,
		MinProperties: s.MinProperties,
		MaxProperties: s.MaxProperties,
	}
	if root {
		out.Type = genai.TypeObject
	}
	if s.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	for _, e := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(e))
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = toGenaiSchema(pair.Value, false)
		}
		if len(out.PropertyOrdering) == 0 {
			out.PropertyOrdering = s.PropertyNames()
		}
	}
	for _, sub := range s.AnyOf {
		out.AnyOf = append(out.AnyOf, toGenaiSchema(sub, false))
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items, false)
	}
	return out
}

// genaiType maps a JSON-Schema type keyword to the Gemini schema type,
// defaulting to string for anything unknown.
func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "string":
		return genai.TypeString
	default:
		return genai.TypeString
	}
}

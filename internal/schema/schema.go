// Package schema models the JSON-Schema subset used by MCP tool descriptors.
//
// Property declaration order matters to callers: positional command arguments
// and usage strings follow it. Go's encoding/json decodes objects into maps
// and discards key order, so Properties is held in an insertion-ordered map
// whose decoder keeps document order.
package schema

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Schema is one node of a tool input schema. Fields mirror the JSON-Schema
// keywords that MCP servers emit and that the LLM declaration format accepts;
// anything else in the source document is ignored.
type Schema struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Title       string `json:"title,omitempty"`
	Format      string `json:"format,omitempty"`

	Default any   `json:"default,omitempty"`
	Example any   `json:"example,omitempty"`
	Enum    []any `json:"enum,omitempty"`

	Properties *orderedmap.OrderedMap[string, *Schema] `json:"properties,omitempty"`
	Required   []string                                `json:"required,omitempty"`
	AnyOf      []*Schema                               `json:"anyOf,omitempty"`
	Items      *Schema                                 `json:"items,omitempty"`

	Minimum       *float64 `json:"minimum,omitempty"`
	Maximum       *float64 `json:"maximum,omitempty"`
	MinItems      *int64   `json:"minItems,omitempty"`
	MaxItems      *int64   `json:"maxItems,omitempty"`
	MinLength     *int64   `json:"minLength,omitempty"`
	MaxLength     *int64   `json:"maxLength,omitempty"`
	MinProperties *int64   `json:"minProperties,omitempty"`
	MaxProperties *int64   `json:"maxProperties,omitempty"`

	Nullable         bool     `json:"nullable,omitempty"`
	PropertyOrdering []string `json:"propertyOrdering,omitempty"`
}

// Parse decodes a raw JSON-Schema document. A nil or empty document yields an
// empty object schema rather than an error so that tools without parameters
// stay callable.
func Parse(raw json.RawMessage) (*Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &Schema{Type: "object"}, nil
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	s.normalize()
	// The root of a tool input schema is an object even when the document
	// declares nothing at all.
	if s.Type == "" {
		s.Type = "object"
	}
	return &s, nil
}

// normalize applies the type-synthesis rules: properties imply object, items
// imply array. Applied recursively after parsing.
func (s *Schema) normalize() {
	if s == nil {
		return
	}
	if s.Type == "" {
		switch {
		case s.Properties != nil && s.Properties.Len() > 0:
			s.Type = "object"
		case s.Items != nil:
			s.Type = "array"
		}
	}
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value.normalize()
		}
	}
	for _, sub := range s.AnyOf {
		sub.normalize()
	}
	s.Items.normalize()
}

// Property returns the schema for the named property, or nil.
func (s *Schema) Property(name string) *Schema {
	if s == nil || s.Properties == nil {
		return nil
	}
	if p, ok := s.Properties.Get(name); ok {
		return p
	}
	return nil
}

// PropertyNames returns property names in declaration order. An explicit
// propertyOrdering wins; names it omits are appended in insertion order.
func (s *Schema) PropertyNames() []string {
	if s == nil || s.Properties == nil {
		return nil
	}
	if len(s.PropertyOrdering) == 0 {
		names := make([]string, 0, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			names = append(names, pair.Key)
		}
		return names
	}
	names := make([]string, 0, s.Properties.Len())
	seen := make(map[string]bool, s.Properties.Len())
	for _, name := range s.PropertyOrdering {
		if _, ok := s.Properties.Get(name); ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if !seen[pair.Key] {
			names = append(names, pair.Key)
		}
	}
	return names
}

// IsRequired reports whether name appears in the required list.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// PropertyType returns the declared type of the named property, defaulting
// to "string" when the property is unknown or untyped.
func (s *Schema) PropertyType(name string) string {
	p := s.Property(name)
	if p == nil || p.Type == "" {
		return "string"
	}
	return p.Type
}

// Object builds an object schema from ordered (name, schema) pairs.
// Test and fixture helper; production schemas come from Parse.
func Object(required []string, pairs ...Prop) *Schema {
	props := orderedmap.New[string, *Schema]()
	for _, p := range pairs {
		props.Set(p.Name, p.Schema)
	}
	return &Schema{Type: "object", Properties: props, Required: required}
}

// Prop is one named property for Object.
type Prop struct {
	Name   string
	Schema *Schema
}

package schema

import (
	"encoding/json"
	"reflect"
	"testing"
)

func mustParse(t *testing.T, raw string) *Schema {
	t.Helper()
	s, err := Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return s
}

func TestParse_EmptyDefaultsToObject(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		s, err := Parse(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if s.Type != "object" {
			t.Errorf("parse %q: type = %q, want object", raw, s.Type)
		}
	}
}

func TestParse_InfersTypeFromShape(t *testing.T) {
	s := mustParse(t, `{"properties":{"a":{"type":"string"}}}`)
	if s.Type != "object" {
		t.Errorf("schema with properties should infer object, got %q", s.Type)
	}

	s = mustParse(t, `{"items":{"type":"integer"}}`)
	if s.Type != "array" {
		t.Errorf("schema with items should infer array, got %q", s.Type)
	}
}

func TestParse_PreservesPropertyOrder(t *testing.T) {
	raw := `{"type":"object","properties":{
		"zulu":{"type":"string"},
		"alpha":{"type":"integer"},
		"mike":{"type":"boolean"}
	}}`
	s := mustParse(t, raw)
	got := s.PropertyNames()
	want := []string{"zulu", "alpha", "mike"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("property order = %v, want declaration order %v", got, want)
	}
}

func TestParse_ExplicitOrderingWins(t *testing.T) {
	raw := `{"type":"object",
		"propertyOrdering":["b","a"],
		"properties":{"a":{"type":"string"},"b":{"type":"string"}}}`
	s := mustParse(t, raw)
	got := s.PropertyNames()
	if !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("property order = %v, want [b a]", got)
	}
}

func TestParse_NestedSchemas(t *testing.T) {
	raw := `{"type":"object","properties":{
		"user":{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]},
		"tags":{"type":"array","items":{"type":"string"}}
	},"required":["user"]}`
	s := mustParse(t, raw)

	user := s.Property("user")
	if user == nil {
		t.Fatal("missing property user")
	}
	if !s.IsRequired("user") {
		t.Error("user should be required")
	}
	if s.IsRequired("tags") {
		t.Error("tags should not be required")
	}
	if name := user.Property("name"); name == nil || name.Type != "string" {
		t.Errorf("nested user.name = %+v", name)
	}
	tags := s.Property("tags")
	if tags == nil || tags.Items == nil || tags.Items.Type != "string" {
		t.Errorf("tags.items = %+v", tags.Items)
	}
}

func TestPropertyType_DefaultsToString(t *testing.T) {
	s := mustParse(t, `{"type":"object","properties":{"a":{},"b":{"type":"number"}}}`)
	if got := s.PropertyType("a"); got != "string" {
		t.Errorf("untyped property type = %q, want string", got)
	}
	if got := s.PropertyType("b"); got != "number" {
		t.Errorf("typed property type = %q, want number", got)
	}
	if got := s.PropertyType("missing"); got != "string" {
		t.Errorf("missing property type = %q, want string", got)
	}
}

func TestParse_NumericBoundsAndNullable(t *testing.T) {
	raw := `{"type":"integer","minimum":1,"maximum":10,"nullable":true}`
	s := mustParse(t, raw)
	if s.Minimum == nil || *s.Minimum != 1 {
		t.Errorf("minimum = %v", s.Minimum)
	}
	if s.Maximum == nil || *s.Maximum != 10 {
		t.Errorf("maximum = %v", s.Maximum)
	}
	if !s.Nullable {
		t.Error("nullable flag lost")
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse(json.RawMessage(`{"type":`)); err == nil {
		t.Error("malformed JSON should error")
	}
}

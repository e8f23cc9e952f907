package gemini

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaJSON(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestDeriveInputSchema_TwoRequiredFields(t *testing.T) {
	type In struct {
		A string `json:"a"`
		B int    `json:"b"`
	}
	s, err := deriveInputSchema(reflect.TypeFor[In](), false)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"integer"}},"required":["a","b"]}`,
		schemaJSON(t, s.parameters()))
}

func TestDeriveInputSchema_PointerIsNullableAndOptional(t *testing.T) {
	type In struct {
		Name  string  `json:"name"`
		Limit *int    `json:"limit"`
		Note  *string `json:"note,omitempty"`
	}
	s, err := deriveInputSchema(reflect.TypeFor[In](), false)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"object",
		"properties":{
			"name":{"type":"string"},
			"limit":{"type":"integer","nullable":true},
			"note":{"type":"string","nullable":true}
		},
		"required":["name"]
	}`, schemaJSON(t, s.parameters()))

	require.NoError(t, s.validator.Validate(mustInstance(t, `{"name":"x","limit":null}`)))
	require.Error(t, s.validator.Validate(mustInstance(t, `{"name":null}`)))
}

func TestDeriveInputSchema_TagsAndNesting(t *testing.T) {
	type Address struct {
		City string `json:"city" description:"City name"`
	}
	type In struct {
		Unit    string    `json:"unit" enum:"c, f" description:"Temperature unit"`
		Mode    string    `json:"mode" jsonschema:"enum=fast,enum=slow"`
		Address Address   `json:"address"`
		Tags    []string  `json:"tags,omitempty"`
		When    time.Time `json:"when,omitempty"`
	}
	s, err := deriveInputSchema(reflect.TypeFor[In](), false)
	require.NoError(t, err)
	params := s.parameters()
	props := params["properties"].(map[string]any)

	assert.Equal(t, map[string]any{
		"type": "string", "description": "Temperature unit", "enum": []any{"c", "f"},
	}, props["unit"])
	assert.Equal(t, []any{"fast", "slow"}, props["mode"].(map[string]any)["enum"])
	assert.Equal(t, map[string]any{
		"type":       "object",
		"properties": map[string]any{"city": map[string]any{"type": "string", "description": "City name"}},
		"required":   []any{"city"},
	}, props["address"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["tags"])
	assert.Equal(t, "date-time", props["when"].(map[string]any)["format"])
	assert.Equal(t, []any{"unit", "mode", "address"}, params["required"])
}

func TestDeriveInputSchema_OnlySubsetKeys(t *testing.T) {
	type In struct {
		N uint `json:"n" jsonschema:"minimum=1,maximum=5,title=Count"`
	}
	s, err := deriveInputSchema(reflect.TypeFor[In](), false)
	require.NoError(t, err)
	allowed := map[string]bool{
		"type": true, "format": true, "description": true, "nullable": true,
		"enum": true, "properties": true, "required": true, "items": true,
	}
	walkSchema(s.declared, func(n map[string]any) {
		for k := range n {
			if _, isProp := s.declared["properties"].(map[string]any)[k]; isProp {
				continue
			}
			assert.True(t, allowed[k], "unexpected schema key %q", k)
		}
	})
}

func TestDeriveInputSchema_FreeformInputsDeclareNoParameters(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeFor[any](),
		reflect.TypeFor[json.RawMessage](),
		reflect.TypeFor[map[string]any](),
		reflect.TypeFor[struct{}](),
	} {
		s, err := deriveInputSchema(typ, false)
		require.NoError(t, err, typ.String())
		assert.Nil(t, s.parameters(), typ.String())
		require.NoError(t, s.validator.Validate(mustInstance(t, `{}`)))
	}
}

func TestDeriveInputSchema_Rejects(t *testing.T) {
	type Node struct {
		Children []Node `json:"children"`
	}
	type WithChan struct {
		C chan int `json:"c"`
	}
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"recursive", reflect.TypeFor[Node]()},
		{"channel", reflect.TypeFor[WithChan]()},
		{"scalar input", reflect.TypeFor[string]()},
		{"slice input", reflect.TypeFor[[]int]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deriveInputSchema(tt.typ, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaGeneration)
		})
	}
}

func TestCompileValidator_Strict(t *testing.T) {
	type In struct {
		A string `json:"a"`
	}
	loose, err := deriveInputSchema(reflect.TypeFor[In](), false)
	require.NoError(t, err)
	strict, err := deriveInputSchema(reflect.TypeFor[In](), true)
	require.NoError(t, err)

	extra := mustInstance(t, `{"a":"x","b":1}`)
	require.NoError(t, loose.validator.Validate(extra))
	require.Error(t, strict.validator.Validate(extra))
	assert.NotContains(t, strict.declared, "additionalProperties")
}

type money struct {
	Cents int64
}

func TestRegisterType(t *testing.T) {
	RegisterType(money{}, "string", "decimal")
	type In struct {
		Price money `json:"price"`
	}
	s, err := deriveInputSchema(reflect.TypeFor[In](), false)
	require.NoError(t, err)
	props := s.parameters()["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "format": "decimal"}, props["price"])

	assert.Panics(t, func() { RegisterType(nil, "string", "") })
	assert.Panics(t, func() { RegisterType(money{}, "", "") })
}

func TestResponseSchemaFor(t *testing.T) {
	type Recipe struct {
		Name        string   `json:"name"`
		Ingredients []string `json:"ingredients"`
	}
	s, err := ResponseSchemaFor[[]Recipe]()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"array",
		"items":{
			"type":"object",
			"properties":{"name":{"type":"string"},"ingredients":{"type":"array","items":{"type":"string"}}},
			"required":["name","ingredients"]
		}
	}`, schemaJSON(t, s))

	s, err = ResponseSchemaFor[map[string]int]()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object"}, s)
}

func TestCompileDynamicSchema(t *testing.T) {
	in := map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]any{
			"q": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"q"},
		"additionalProperties": false,
	}
	s, err := compileDynamicSchema(in, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`,
		schemaJSON(t, s.parameters()))
	assert.Contains(t, in, "$schema", "caller map must not be mutated")

	_, err = compileDynamicSchema(map[string]any{"type": "string"}, false)
	require.ErrorIs(t, err, ErrSchemaGeneration)
}

func mustInstance(t *testing.T, s string) any {
	t.Helper()
	v, err := unmarshalInstance([]byte(s))
	require.NoError(t, err)
	return v
}

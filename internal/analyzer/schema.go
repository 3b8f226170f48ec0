package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema validates decoded service responses.
type responseSchema struct {
	schema *jsonschema.Schema
}

var (
	inventorySchema = mustCompile("inventory.json", inventorySchemaDoc())
	documentSchema  = mustCompile("document.json", documentSchemaDoc())
)

func mustCompile(name string, doc map[string]any) responseSchema {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("analyzer: marshal schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("analyzer: add schema %s: %v", name, err))
	}
	s, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("analyzer: compile schema %s: %v", name, err))
	}
	return responseSchema{schema: s}
}

func (s responseSchema) validate(v map[string]any) error {
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}

func textProp() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

// amountProp accepts a non-negative number or a numeric string.
func amountProp() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "number", "minimum": 0},
		map[string]any{"type": "string", "pattern": `^\s*\$?[0-9][0-9,]*(\.[0-9]+)?\s*$`},
	}}
}

// listProp accepts an array of strings or a delimited string.
func listProp() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		textProp(),
	}}
}

func inventorySchemaDoc() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":          textProp(),
			"description":   textProp(),
			"category":      textProp(),
			"material":      textProp(),
			"color":         textProp(),
			"dimensions":    textProp(),
			"origin_source": textProp(),
			"import_cost":   amountProp(),
			"retail_price":  amountProp(),
			"key_tags":      listProp(),
		},
		"required": []string{
			"name", "description", "category", "material", "color",
			"dimensions", "origin_source", "import_cost", "retail_price", "key_tags",
		},
	}
}

func documentSchemaDoc() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":    textProp(),
			"author":   textProp(),
			"category": textProp(),
			"field":    textProp(),
			"publication_year": map[string]any{"anyOf": []any{
				map[string]any{"type": "integer"},
				map[string]any{"type": "null"},
				map[string]any{"type": "string", "pattern": `^\s*[0-9]{1,4}\s*$`},
			}},
			"journal_publisher": map[string]any{"type": []string{"string", "null"}},
			"thesis":            textProp(),
			"issue":             textProp(),
			"summary":           textProp(),
			"influenced_by":     listProp(),
			"hashtags":          listProp(),
		},
		"required": []string{"title", "author", "category", "field", "thesis", "issue", "summary"},
	}
}

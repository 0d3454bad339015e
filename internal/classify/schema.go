package classify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed classification_items.schema.json
var classificationItemsSchemaJSON string

// batchItem is one element of a validated batch response. Idx is already in
// canonical form; sentiment and category may still be empty when the service
// under-filled an element.
type batchItem struct {
	Idx       string
	Sentiment string
	Category  string
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// decodeBatchItems parses and validates one extracted JSON array. Any
// structural problem fails the whole batch; per-element label gaps are left
// for the caller to repair item by item.
func decodeBatchItems(raw []byte) ([]batchItem, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode batch JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	elements, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("batch payload is not an array")
	}

	items := make([]batchItem, 0, len(elements))
	for _, element := range elements {
		obj, ok := element.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("batch element is not an object")
		}
		items = append(items, batchItem{
			Idx:       canonicalIdx(obj["idx"]),
			Sentiment: strings.TrimSpace(stringField(obj["sentiment"])),
			Category:  strings.TrimSpace(stringField(obj["category"])),
		})
	}
	return items, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("classification_items.schema.json", strings.NewReader(classificationItemsSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("classification_items.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

// canonicalIdx folds the two idx encodings the service emits into one map
// key: strings come back trimmed, numbers as their integer decimal form.
func canonicalIdx(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		if f, err := v.Float64(); err == nil {
			return strconv.FormatInt(int64(f), 10)
		}
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func stringField(value any) string {
	s, _ := value.(string)
	return s
}

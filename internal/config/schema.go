package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "keymeter-config.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// SchemaJSON returns the embedded JSON schema for config files.
func SchemaJSON() []byte {
	return append([]byte(nil), schemaJSON...)
}

// ValidateSchema checks the config file at path against the embedded schema.
// Unlike Validate it rejects unknown keys and wrong types before any
// defaults are applied.
func ValidateSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return ValidateSchemaBytes(path, data)
}

// ValidateSchemaBytes is ValidateSchema for in-memory data; name selects
// the format by extension.
func ValidateSchemaBytes(name string, data []byte) error {
	var raw map[string]any
	if err := decode(name, data, &raw); err != nil {
		return err
	}

	// TOML and YAML decode to Go-typed values; round-trip through JSON so
	// the validator sees plain JSON types.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}
	var instance any
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}

	schema, err := configSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	helloSchema = mustSchema("hello.schema.json")
	actSchema   = mustSchema("act.schema.json")
)

func mustSchema(name string) *jsonschema.Schema {
	b, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}

// ValidateHello checks a raw HELLO message against its schema.
func ValidateHello(raw []byte) error { return validate(helloSchema, raw) }

// ValidateAct checks a raw ACT message against its schema.
func ValidateAct(raw []byte) error { return validate(actSchema, raw) }

func validate(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	return nil
}

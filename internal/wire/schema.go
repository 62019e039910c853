// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package wire

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaID is the $id of the envelope schema.
const SchemaID = "https://adjudicator.dev/schemas/envelope.schema.json"

var payloadTypes = map[Kind]any{
	KindModifier: &ModifierPayload{},
	KindMastery:  &MasteryPayload{},
	KindImpact:   &ImpactPayload{},
	KindSuccess:  &SuccessPayload{},
	KindOpposed:  &OpposedPayload{},
	KindCombat:   &CombatPayload{},
}

var (
	compileOnce sync.Once
	compiled    map[string]*jschema.Schema
	compileErr  error
)

func reflectSchema(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(v)
}

// GenerateSchema renders the envelope JSON Schema.
func GenerateSchema() ([]byte, error) {
	s := reflectSchema(&Envelope{})
	s.ID = jsonschema.ID(SchemaID)
	s.Title = "Adjudicator hand-off envelope"
	s.Description = "Versioned tagged container for ledgers and tests"
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, oops.Code(CodeMalformed).In("wire").Wrapf(err, "marshal envelope schema")
	}
	return data, nil
}

// GeneratePayloadSchema renders the schema of one kind's payload.
func GeneratePayloadSchema(kind Kind) ([]byte, error) {
	v, ok := payloadTypes[kind]
	if !ok {
		return nil, oops.Code(CodeUnknownKind).In("wire").With("kind", string(kind)).Errorf("unknown kind")
	}
	s := reflectSchema(v)
	s.Title = string(kind)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, oops.Code(CodeMalformed).In("wire").Wrapf(err, "marshal payload schema")
	}
	return data, nil
}

func compileAll() (map[string]*jschema.Schema, error) {
	compileOnce.Do(func() {
		out := make(map[string]*jschema.Schema, len(payloadTypes)+1)
		c := jschema.NewCompiler()

		add := func(name string, raw []byte) error {
			doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			return c.AddResource(name, doc)
		}

		env, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		if err := add("envelope.json", env); err != nil {
			compileErr = err
			return
		}
		for kind := range payloadTypes {
			raw, err := GeneratePayloadSchema(kind)
			if err != nil {
				compileErr = err
				return
			}
			if err := add(string(kind)+".json", raw); err != nil {
				compileErr = err
				return
			}
		}

		names := []string{"envelope.json"}
		for kind := range payloadTypes {
			names = append(names, string(kind)+".json")
		}
		for _, name := range names {
			sch, err := c.Compile(name)
			if err != nil {
				compileErr = err
				return
			}
			out[name] = sch
		}
		compiled = out
	})
	if compileErr != nil {
		return nil, oops.Code(CodeMalformed).In("wire").Wrapf(compileErr, "compile schemas")
	}
	return compiled, nil
}

// Validate checks data against the envelope schema.
func Validate(data []byte) error {
	return validate("envelope.json", data)
}

func validatePayload(kind Kind, payload json.RawMessage) error {
	return validate(string(kind)+".json", payload)
}

func validate(name string, data []byte) error {
	if len(data) == 0 {
		return oops.Code(CodeMalformed).In("wire").With("schema", name).Errorf("empty document")
	}
	schemas, err := compileAll()
	if err != nil {
		return err
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code(CodeMalformed).In("wire").With("schema", name).Wrapf(err, "invalid JSON")
	}
	if err := schemas[name].Validate(inst); err != nil {
		return oops.Code(CodeMalformed).In("wire").With("schema", name).Wrapf(err, "schema validation failed")
	}
	return nil
}

// Package schema validates forensic capsules and proof-input manifests
// against the JSON Schema files embedded from this package's directory
// (identical copies are kept under docs/schema), independent of
// the canonicalization and hashing rules enforced by internal/capsule and
// internal/proofinput. It exists to catch structural drift (missing
// fields, wrong types) before a record ever reaches the hashing pipeline.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed capsule-v1.schema.json proof-input-v1.schema.json
var schemaFS embed.FS

const (
	capsuleSchemaID    = "capsule-v1.schema.json"
	proofInputSchemaID = "proof-input-v1.schema.json"
)

var (
	compileOnce sync.Once
	compileErr  error
	capsuleSch  *jsonschema.Schema
	manifestSch *jsonschema.Schema
)

func compile() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{capsuleSchemaID, proofInputSchemaID} {
			data, err := schemaFS.ReadFile(name)
			if err != nil {
				compileErr = fmt.Errorf("read embedded schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}

		capsuleSch, compileErr = compiler.Compile(capsuleSchemaID)
		if compileErr != nil {
			return
		}
		manifestSch, compileErr = compiler.Compile(proofInputSchemaID)
	})
	return compileErr
}

// ValidateCapsuleJSON validates raw capsule JSON bytes against the forensic
// capsule schema.
func ValidateCapsuleJSON(data []byte) error {
	if err := compile(); err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal capsule: %w", err)
	}
	if err := capsuleSch.Validate(instance); err != nil {
		return fmt.Errorf("capsule schema validation: %w", err)
	}
	return nil
}

// ValidateProofInputJSON validates raw proof-input manifest JSON bytes
// against the manifest schema. The manifest's metadata fields are an open
// map; only the optional signature block, when present, is constrained.
func ValidateProofInputJSON(data []byte) error {
	if err := compile(); err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal proof input: %w", err)
	}
	if err := manifestSch.Validate(instance); err != nil {
		return fmt.Errorf("proof input schema validation: %w", err)
	}
	return nil
}

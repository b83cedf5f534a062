// Package jsondoc parses the JSON tree definition format into documents.
// Unlike the XML format, JSON input is checked against an embedded JSON
// Schema before conversion, so a successfully parsed document is already
// shape-correct; the structural validator still judges tree grammar.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rendis/arbor/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchemaJSON is the JSON Schema for the tree definition format.
// Embedded as a constant to avoid filesystem dependencies.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://arbor.dev/schemas/document.json",
  "type": "object",
  "required": ["trees"],
  "properties": {
    "main_tree": { "type": "string", "minLength": 1 },
    "trees": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/tree" }
    },
    "model": { "$ref": "#/$defs/model" }
  },
  "additionalProperties": false,
  "$defs": {
    "tree": {
      "type": "object",
      "required": ["id", "root"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "root": { "$ref": "#/$defs/node" }
      },
      "additionalProperties": false
    },
    "node": {
      "type": "object",
      "required": ["node"],
      "properties": {
        "node": { "type": "string", "minLength": 1 },
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string", "minLength": 1 },
        "params": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "children": {
          "type": "array",
          "items": { "$ref": "#/$defs/node" }
        }
      },
      "additionalProperties": false
    },
    "model": {
      "type": "object",
      "required": ["nodes"],
      "properties": {
        "nodes": {
          "type": "array",
          "items": { "$ref": "#/$defs/model_node" }
        }
      },
      "additionalProperties": false
    },
    "model_node": {
      "type": "object",
      "required": ["kind", "id"],
      "properties": {
        "kind": {
          "type": "string",
          "enum": ["Action", "Condition", "Decorator", "SubTree"]
        },
        "id": { "type": "string", "minLength": 1 },
        "params": {
          "type": "array",
          "items": { "$ref": "#/$defs/model_param" }
        }
      },
      "additionalProperties": false
    },
    "model_param": {
      "type": "object",
      "required": ["label"],
      "properties": {
        "label": { "type": "string", "minLength": 1 },
        "type": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// documentJSON mirrors the on-disk JSON shape before conversion.
type documentJSON struct {
	MainTree string     `json:"main_tree,omitempty"`
	Trees    []treeJSON `json:"trees"`
	Model    *modelJSON `json:"model,omitempty"`
}

type treeJSON struct {
	ID   string    `json:"id"`
	Root *nodeJSON `json:"root"`
}

type nodeJSON struct {
	Node     string            `json:"node"`
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Children []*nodeJSON       `json:"children,omitempty"`
}

type modelJSON struct {
	Nodes []modelNodeJSON `json:"nodes"`
}

type modelNodeJSON struct {
	Kind   string           `json:"kind"`
	ID     string           `json:"id"`
	Params []modelParamJSON `json:"params,omitempty"`
}

type modelParamJSON struct {
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// Parser decodes JSON tree documents with the document schema pre-compiled.
// It is safe for concurrent use.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser creates a Parser with the document JSON Schema compiled.
func NewParser() (*Parser, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource("https://arbor.dev/schemas/document.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}

	compiled, err := c.Compile("https://arbor.dev/schemas/document.json")
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	return &Parser{schema: compiled}, nil
}

// Parse decodes a JSON document. It returns ErrCodeParse for malformed
// JSON and ErrCodeValidation when the input breaks the document schema.
func (p *Parser) Parse(data []byte) (*schema.Document, error) {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeParse,
			fmt.Sprintf("malformed JSON: %s", err)).WithCause(err)
	}

	if err := p.schema.Validate(value); err != nil {
		return nil, toValidationError(err)
	}

	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse,
			fmt.Sprintf("malformed JSON: %s", err)).WithCause(err)
	}
	return toDocument(&raw), nil
}

// ParseReader decodes a JSON document from a reader.
func (p *Parser) ParseReader(r io.Reader) (*schema.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "read document").WithCause(err)
	}
	return p.Parse(data)
}

// ParseFile decodes a JSON document from a file.
func (p *Parser) ParseFile(path string) (*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "read %s", path).WithCause(err)
	}
	return p.Parse(data)
}

// toDocument converts the decoded JSON shape into the neutral document
// model shared with the XML parser. JSON input carries no line numbers,
// so every converted node keeps line zero.
func toDocument(raw *documentJSON) *schema.Document {
	doc := &schema.Document{MainTree: raw.MainTree}
	for _, t := range raw.Trees {
		def := &schema.TreeDefinition{ID: t.ID}
		if t.Root != nil {
			def.Roots = []*schema.Element{toElement(t.Root)}
		}
		doc.Trees = append(doc.Trees, def)
	}
	if raw.Model != nil {
		model := &schema.TreeNodesModel{}
		for _, n := range raw.Model.Nodes {
			nm := schema.NodeModel{Kind: n.Kind, ID: n.ID}
			for _, p := range n.Params {
				nm.Params = append(nm.Params, schema.ParamModel{Label: p.Label, Type: p.Type})
			}
			model.Nodes = append(model.Nodes, nm)
		}
		doc.Models = []*schema.TreeNodesModel{model}
	}
	return doc
}

// toElement flattens a JSON node into an element. The reserved id and
// name fields win over same-named keys in params.
func toElement(n *nodeJSON) *schema.Element {
	el := &schema.Element{Name: n.Node}
	attrs := make(map[string]string, len(n.Params)+2)
	for k, v := range n.Params {
		attrs[k] = v
	}
	if n.ID != "" {
		attrs["ID"] = n.ID
	}
	if n.Name != "" {
		attrs["name"] = n.Name
	}
	if len(attrs) > 0 {
		el.Attributes = attrs
	}
	for _, c := range n.Children {
		el.Children = append(el.Children, toElement(c))
	}
	return el
}

// toValidationError converts a jsonschema.ValidationError into an Error
// carrying one message per violated instance location.
func toValidationError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("document schema validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

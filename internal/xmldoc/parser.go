// Package xmldoc parses the XML tree definition format into documents. The
// parser preserves structure verbatim, including violations, and tags every
// element with its source line; judging the structure is the validator's
// job, not the parser's.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"sort"

	"github.com/rendis/arbor/pkg/schema"
)

// Parse decodes an XML document. It returns ErrCodeParse for malformed
// input or a missing <root> element; everything else is represented
// faithfully for validation.
func Parse(data []byte) (*schema.Document, error) {
	root, err := decodeElementTree(data)
	if err != nil {
		return nil, err
	}
	if root.Name != "root" {
		return nil, schema.NewError(schema.ErrCodeParse,
			"The XML must have a root node called <root>").
			WithDetails(map[string]any{"line": root.Line})
	}

	doc := &schema.Document{
		MainTree: root.Attributes["main_tree_to_execute"],
	}
	for _, child := range root.Children {
		switch child.Name {
		case "BehaviorTree":
			doc.Trees = append(doc.Trees, &schema.TreeDefinition{
				ID:    child.Attributes["ID"],
				Roots: child.Children,
				Line:  child.Line,
			})
		case "TreeNodesModel":
			doc.Models = append(doc.Models, convertModel(child))
		}
	}
	return doc, nil
}

// ParseReader decodes an XML document from a reader.
func ParseReader(r io.Reader) (*schema.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "read document").WithCause(err)
	}
	return Parse(data)
}

// ParseFile decodes an XML document from a file.
func ParseFile(path string) (*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "read %s", path).WithCause(err)
	}
	return Parse(data)
}

// decodeElementTree runs the token loop, building the generic element tree
// and attributing source lines.
func decodeElementTree(data []byte) (*schema.Element, error) {
	lines := newLineIndex(data)
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *schema.Element
	var stack []*schema.Element

	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "malformed XML: %s", err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"line": lines.at(dec.InputOffset())})
		}

		switch t := tok.(type) {
		case xml.StartElement:
			elem := &schema.Element{
				Name: t.Name.Local,
				Line: lines.at(start),
			}
			if len(t.Attr) > 0 {
				elem.Attributes = make(map[string]string, len(t.Attr))
				for _, attr := range t.Attr {
					elem.Attributes[attr.Name.Local] = attr.Value
				}
			}

			if len(stack) == 0 {
				if root != nil {
					return nil, schema.NewError(schema.ErrCodeParse,
						"The XML must have a single root node").
						WithDetails(map[string]any{"line": elem.Line})
				}
				root = elem
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elem)
			}
			stack = append(stack, elem)

		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}

	if root == nil {
		return nil, schema.NewError(schema.ErrCodeParse, "document contains no XML elements")
	}
	return root, nil
}

// convertModel lifts a raw <TreeNodesModel> element into the metadata form.
func convertModel(elem *schema.Element) *schema.TreeNodesModel {
	model := &schema.TreeNodesModel{Line: elem.Line}
	for _, entry := range elem.Children {
		node := schema.NodeModel{
			Kind: entry.Name,
			ID:   entry.ID(),
			Line: entry.Line,
		}
		for _, p := range entry.Children {
			if p.Name != "Parameter" {
				continue
			}
			node.Params = append(node.Params, schema.ParamModel{
				Label: p.Attributes["label"],
				Type:  p.Attributes["type"],
				Line:  p.Line,
			})
		}
		model.Nodes = append(model.Nodes, node)
	}
	return model
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int64

func newLineIndex(data []byte) lineIndex {
	var idx lineIndex
	for i, b := range data {
		if b == '\n' {
			idx = append(idx, int64(i))
		}
	}
	return idx
}

func (idx lineIndex) at(offset int64) int {
	return sort.Search(len(idx), func(i int) bool { return idx[i] >= offset }) + 1
}

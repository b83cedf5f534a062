package schema

// Document is the parser-independent form of a declarative tree definition.
// Front-end parsers (XML, JSON) produce it; the validator and builder only
// ever consume it. The parser preserves structure verbatim — including
// violations such as several TreeNodesModel blocks or several children under
// one BehaviorTree — so that the validator can report them.
type Document struct {
	// MainTree is the ID named by the root element's main_tree_to_execute
	// attribute, or "" when absent.
	MainTree string `json:"main_tree,omitempty"`

	// Trees holds every BehaviorTree definition, in document order.
	Trees []*TreeDefinition `json:"trees"`

	// Models holds every TreeNodesModel block found. Only the first one is
	// meaningful; the validator rejects documents carrying more than one.
	// The metadata is for external tooling and never consulted while
	// ticking.
	Models []*TreeNodesModel `json:"models,omitempty"`
}

// Tree returns the definition with the given ID, or nil.
func (d *Document) Tree(id string) *TreeDefinition {
	for _, t := range d.Trees {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Model returns the first TreeNodesModel block, or nil.
func (d *Document) Model() *TreeNodesModel {
	if len(d.Models) == 0 {
		return nil
	}
	return d.Models[0]
}

// TreeDefinition is one named BehaviorTree definition. A valid definition
// has exactly one structural root; the parser keeps whatever it found so
// the validator can enforce that.
type TreeDefinition struct {
	ID    string     `json:"id"`
	Roots []*Element `json:"roots"`
	Line  int        `json:"line,omitempty"`
}

// Root returns the single structural root, or nil when the definition is
// empty or ambiguous.
func (t *TreeDefinition) Root() *Element {
	if len(t.Roots) != 1 {
		return nil
	}
	return t.Roots[0]
}

// Element is a single structural node of a definition: a name, a flat
// attribute map, ordered children and the source line for diagnostics
// (0 when the front-end cannot attribute one).
type Element struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []*Element        `json:"children,omitempty"`
	Line       int               `json:"line,omitempty"`
}

// Attr returns the attribute value and whether it was present.
func (e *Element) Attr(key string) (string, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// ID returns the ID attribute, or "" when absent.
func (e *Element) ID() string {
	return e.Attributes["ID"]
}

// InstanceName returns the name attribute when present, falling back to the
// ID attribute and finally to the element name itself.
func (e *Element) InstanceName() string {
	if v, ok := e.Attributes["name"]; ok && v != "" {
		return v
	}
	if id := e.ID(); id != "" {
		return id
	}
	return e.Name
}

// Params returns every attribute except the structural ID and name ones.
// These become the construction-time parameters of the instantiated node.
func (e *Element) Params() map[string]string {
	if len(e.Attributes) == 0 {
		return nil
	}
	params := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		if k == "ID" || k == "name" {
			continue
		}
		params[k] = v
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// TreeNodesModel describes the node types a definition expects, for
// graphical editors and other external tooling.
type TreeNodesModel struct {
	Nodes []NodeModel `json:"nodes,omitempty"`
	Line  int         `json:"line,omitempty"`
}

// NodeModel is the declared metadata of one node type.
type NodeModel struct {
	Kind   string       `json:"kind"` // Action | Condition | Decorator | SubTree
	ID     string       `json:"id"`
	Params []ParamModel `json:"params,omitempty"`
	Line   int          `json:"line,omitempty"`
}

// ParamModel declares one parameter a node type accepts.
type ParamModel struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	Line  int    `json:"line,omitempty"`
}

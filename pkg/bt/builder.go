package bt

import (
	"math"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rendis/arbor/internal/validation"
	"github.com/rendis/arbor/pkg/schema"
)

// SubstitutionRule swaps the registered type of matching leaves at build
// time, leaving the document untouched. Pattern is a path.Match pattern
// tested against the node path: instance names prefixed by the chain of
// enclosing subtree instance names, joined with "/". ID is the registration
// ID to instantiate instead.
//
// Rules apply to Action and Condition elements only; swapping structural
// nodes would change the shape the document was validated against.
type SubstitutionRule struct {
	Pattern string
	ID      string
}

// Builder turns validated documents into executable trees. A zero-value
// Builder is not usable; construct one with NewBuilder.
type Builder struct {
	registry *Registry
	subs     []SubstitutionRule
}

// NewBuilder creates a Builder over the given registry. A nil registry gets
// a fresh one carrying only the built-ins.
func NewBuilder(registry *Registry) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Builder{registry: registry}
}

// Registry returns the registry the builder instantiates from.
func (b *Builder) Registry() *Registry { return b.registry }

// AddSubstitutionRule appends a substitution rule. When several rules match
// the same node path, the first one added wins.
func (b *Builder) AddSubstitutionRule(pattern, id string) {
	b.subs = append(b.subs, SubstitutionRule{Pattern: pattern, ID: id})
}

// Build validates the document, selects the entry definition and constructs
// the tree. The entry is the definition named by main_tree; a document with
// a single definition needs no selector, one with several does.
//
// Build is all-or-nothing: any instantiation or attachment problem aborts
// with an error and no partially built tree escapes.
func (b *Builder) Build(doc *schema.Document) (*Tree, error) {
	return b.BuildTree(doc, "")
}

// BuildTree is Build with an explicit entry definition, bypassing the
// document's main_tree selector.
func (b *Builder) BuildTree(doc *schema.Document, treeID string) (*Tree, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeBuild, "document is nil")
	}
	if result := validation.CheckDocument(doc); !result.Valid() {
		return nil, result.ToError()
	}

	def, err := selectEntry(doc, treeID)
	if err != nil {
		return nil, err
	}

	state := &buildState{
		doc:      doc,
		registry: b.registry,
		subs:     b.subs,
		visiting: make(map[string]bool),
	}
	if def.ID != "" {
		state.visiting[def.ID] = true
		state.stack = append(state.stack, def.ID)
	}

	rootBB := NewBlackboard(nil)
	root, err := state.buildElement(def.Root(), nil, rootBB, "")
	if err != nil {
		return nil, err
	}
	if err := state.checkContracts(); err != nil {
		return nil, err
	}

	name := def.ID
	if name == "" {
		name = "tree"
	}
	return &Tree{
		uid:   uuid.NewString(),
		name:  name,
		root:  root,
		nodes: state.nodes,
		bb:    rootBB,
	}, nil
}

// selectEntry resolves which definition to build.
func selectEntry(doc *schema.Document, treeID string) (*schema.TreeDefinition, error) {
	if treeID == "" {
		treeID = doc.MainTree
	}
	if treeID != "" {
		def := doc.Tree(treeID)
		if def == nil {
			return nil, schema.NewErrorf(schema.ErrCodeBuild,
				"tree [%s] is not defined in the document", treeID)
		}
		return def, nil
	}

	switch len(doc.Trees) {
	case 0:
		return nil, schema.NewError(schema.ErrCodeBuild, "document defines no trees")
	case 1:
		return doc.Trees[0], nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeBuild,
			"document defines %d trees and no main_tree selector", len(doc.Trees))
	}
}

type buildState struct {
	doc      *schema.Document
	registry *Registry
	subs     []SubstitutionRule
	nodes    []Node
	visiting map[string]bool
	stack    []string
}

// buildElement instantiates one element, registers it in the flat node
// list, attaches it to its parent and recurses into its children. prefix is
// the subtree-scoped path prefix for substitution matching.
func (s *buildState) buildElement(elem *schema.Element, parent Node, bb *Blackboard, prefix string) (Node, error) {
	nodePath := prefix + elem.InstanceName()

	if elem.Name == "SubTree" {
		return s.buildSubtree(elem, parent, bb, nodePath)
	}

	key, err := s.registrationKey(elem, nodePath)
	if err != nil {
		return nil, err
	}
	node, err := s.registry.Instantiate(key, elem.InstanceName(), elem.Params())
	if err != nil {
		return nil, describeBuildSite(err, elem, nodePath)
	}

	if err := s.adopt(node, parent, bb, elem); err != nil {
		return nil, err
	}

	for _, child := range elem.Children {
		if _, err := s.buildElement(child, node, bb, prefix); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// buildSubtree creates the subtree node, then expands the referenced
// definition into the same flat list under a child blackboard scope.
func (s *buildState) buildSubtree(elem *schema.Element, parent Node, bb *Blackboard, nodePath string) (Node, error) {
	ref := elem.ID()
	st := NewSubtree(ref, elem.InstanceName(), elem.Params())

	if err := s.adopt(st, parent, bb, elem); err != nil {
		return nil, err
	}

	if s.visiting[ref] {
		return nil, schema.NewErrorf(schema.ErrCodeSubtreeCycle,
			"subtree cycle detected: %s", strings.Join(append(s.stack, ref), " -> ")).
			WithDetails(map[string]any{"line": elem.Line, "tree": ref})
	}
	def := s.doc.Tree(ref)
	if def == nil {
		return nil, schema.NewErrorf(schema.ErrCodeBuild,
			"SubTree references tree [%s], which is not defined in the document", ref).
			WithDetails(map[string]any{"line": elem.Line})
	}

	scope := NewBlackboard(bb)
	st.setScope(scope)

	s.visiting[ref] = true
	s.stack = append(s.stack, ref)
	_, err := s.buildElement(def.Root(), st, scope, nodePath+"/")
	s.stack = s.stack[:len(s.stack)-1]
	s.visiting[ref] = false

	if err != nil {
		return nil, err
	}
	return st, nil
}

// registrationKey maps an element onto a registry ID, applying substitution
// rules to leaf elements.
func (s *buildState) registrationKey(elem *schema.Element, nodePath string) (string, error) {
	key := elem.Name
	if key == "Action" || key == "Condition" || key == "Decorator" {
		key = elem.ID()
	}

	if elem.Name == "Action" || elem.Name == "Condition" {
		for _, rule := range s.subs {
			matched, err := path.Match(rule.Pattern, nodePath)
			if err != nil {
				return "", schema.NewErrorf(schema.ErrCodeBuild,
					"invalid substitution pattern %q", rule.Pattern).WithCause(err)
			}
			if matched {
				return rule.ID, nil
			}
		}
	}
	return key, nil
}

// adopt assigns identity and scope to a freshly built node and hands it to
// its parent via whichever child capability the parent exposes.
func (s *buildState) adopt(node Node, parent Node, bb *Blackboard, elem *schema.Element) error {
	if len(s.nodes) >= math.MaxUint16 {
		return schema.NewErrorf(schema.ErrCodeBuild,
			"tree exceeds %d nodes", math.MaxUint16)
	}
	s.nodes = append(s.nodes, node)
	node.base().setUID(uint16(len(s.nodes)))
	node.base().setBlackboard(bb)

	if parent == nil {
		return nil
	}
	switch p := parent.(type) {
	case ChildAdder:
		return p.AddChild(node)
	case ChildSetter:
		return p.SetChild(node)
	default:
		return schema.NewErrorf(schema.ErrCodeContractViolation,
			"node %q cannot hold children", parent.Name()).
			WithDetails(map[string]any{"line": elem.Line})
	}
}

// checkContracts verifies the assembled structure: every composite got the
// children its kind requires.
func (s *buildState) checkContracts() error {
	for _, node := range s.nodes {
		lister, ok := node.(ChildLister)
		if !ok {
			continue
		}
		children := len(lister.ChildNodes())
		switch node.Kind() {
		case KindControl:
			if children == 0 {
				return schema.NewErrorf(schema.ErrCodeContractViolation,
					"control %q has no children", node.Name())
			}
		case KindDecorator, KindSubtree:
			if children != 1 {
				return schema.NewErrorf(schema.ErrCodeContractViolation,
					"decorator %q must wrap exactly 1 child, has %d", node.Name(), children)
			}
		}
	}
	return nil
}

// describeBuildSite augments an instantiation error with the document
// location it happened at.
func describeBuildSite(err error, elem *schema.Element, nodePath string) error {
	if opErr, ok := err.(*schema.Error); ok {
		return opErr.WithDetails(map[string]any{"line": elem.Line, "path": nodePath})
	}
	return schema.NewErrorf(schema.ErrCodeBuild,
		"instantiate node at line %d: %s", elem.Line, err.Error()).WithCause(err)
}

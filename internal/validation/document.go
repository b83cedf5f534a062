// Package validation checks the structural grammar of tree documents before
// any node is instantiated. Checks accumulate into a ValidationResult
// instead of stopping at the first problem, so one pass reports every
// violation with its source line.
package validation

import "github.com/rendis/arbor/pkg/schema"

// Issue codes attached to ValidationIssues.
const (
	CodeStructure = "structure"
	CodeAttribute = "attribute"
	CodeUnknown   = "unknown_node"
	CodeModel     = "model"
	CodeTree      = "tree"
)

// controlNames are the composite element names the grammar recognizes.
var controlNames = map[string]bool{
	"Sequence":     true,
	"SequenceStar": true,
	"Fallback":     true,
	"FallbackStar": true,
	"Parallel":     true,
}

// IsControlName reports whether the element name is a recognized control.
func IsControlName(name string) bool { return controlNames[name] }

// CheckDocument validates every tree definition and model block in the
// document. It never returns nil; callers test Valid().
func CheckDocument(doc *schema.Document) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError(0, CodeStructure, "document is nil")
		return result
	}

	checkModels(doc, result)
	checkTreeIDs(doc, result)
	for _, tree := range doc.Trees {
		checkTree(tree, result)
	}
	return result
}

// checkModels enforces the single-TreeNodesModel rule and the declared
// metadata grammar.
func checkModels(doc *schema.Document, result *schema.ValidationResult) {
	for i, model := range doc.Models {
		if i > 0 {
			result.AddError(model.Line, CodeModel, "Only a single node <TreeNodesModel> is supported")
			continue
		}
		for _, node := range model.Nodes {
			switch node.Kind {
			case "Action", "Condition", "Decorator", "SubTree":
				if node.ID == "" {
					result.AddErrorf(node.Line, CodeAttribute,
						"The node <%s> must have the attribute [ID]", node.Kind)
				}
			default:
				result.AddErrorf(node.Line, CodeUnknown,
					"Node not recognized inside <TreeNodesModel>: <%s>", node.Kind)
			}
			for _, param := range node.Params {
				if param.Label == "" || param.Type == "" {
					result.AddError(param.Line, CodeAttribute,
						"The node <Parameter> must have the attributes [label] and [type]")
				}
			}
		}
	}
}

// checkTreeIDs enforces that definitions are addressable: IDs must be
// unique, and mandatory as soon as the document holds more than one tree.
func checkTreeIDs(doc *schema.Document, result *schema.ValidationResult) {
	seen := make(map[string]bool, len(doc.Trees))
	for _, tree := range doc.Trees {
		if tree.ID == "" {
			if len(doc.Trees) > 1 {
				result.AddError(tree.Line, CodeTree,
					"The node <BehaviorTree> must have the attribute [ID]")
			}
			continue
		}
		if seen[tree.ID] {
			result.AddErrorf(tree.Line, CodeTree,
				"Two <BehaviorTree> share the same ID [%s]", tree.ID)
		}
		seen[tree.ID] = true
	}
}

// checkTree enforces the single-root rule and recurses into the structure.
func checkTree(tree *schema.TreeDefinition, result *schema.ValidationResult) {
	if len(tree.Roots) != 1 {
		result.AddError(tree.Line, CodeStructure,
			"The node <BehaviorTree> must have exactly 1 child")
	}
	for _, root := range tree.Roots {
		checkElement(root, result)
	}
}

// checkElement applies the per-node grammar, top-down.
func checkElement(e *schema.Element, result *schema.ValidationResult) {
	children := len(e.Children)

	switch {
	case e.Name == "Decorator":
		if children != 1 {
			result.AddError(e.Line, CodeStructure,
				"The node <Decorator> must have exactly 1 child")
		}
		if e.ID() == "" {
			result.AddError(e.Line, CodeAttribute,
				"The node <Decorator> must have the attribute [ID]")
		}
	case e.Name == "Action" || e.Name == "Condition":
		if children != 0 {
			result.AddErrorf(e.Line, CodeStructure,
				"The node <%s> must not have any child", e.Name)
		}
		if e.ID() == "" {
			result.AddErrorf(e.Line, CodeAttribute,
				"The node <%s> must have the attribute [ID]", e.Name)
		}
	case e.Name == "SubTree":
		if children != 0 {
			result.AddError(e.Line, CodeStructure,
				"The node <SubTree> must not have any child")
		}
		if e.ID() == "" {
			result.AddError(e.Line, CodeAttribute,
				"The node <SubTree> must have the attribute [ID]")
		}
	case IsControlName(e.Name):
		if children == 0 {
			result.AddError(e.Line, CodeStructure,
				"A Control node must have at least 1 child")
		}
	default:
		result.AddErrorf(e.Line, CodeUnknown, "Node not recognized: <%s>", e.Name)
	}

	for _, child := range e.Children {
		checkElement(child, result)
	}
}

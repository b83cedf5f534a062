package validation

import (
	"testing"

	"github.com/rendis/arbor/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func el(name string, line int, attrs map[string]string, children ...*schema.Element) *schema.Element {
	return &schema.Element{Name: name, Attributes: attrs, Children: children, Line: line}
}

func oneTreeDoc(roots ...*schema.Element) *schema.Document {
	return &schema.Document{
		Trees: []*schema.TreeDefinition{{ID: "Main", Roots: roots, Line: 1}},
	}
}

func messages(result *schema.ValidationResult) []string {
	return result.Messages()
}

// --- grammar ---

func TestCheckDocument_ValidTree(t *testing.T) {
	doc := oneTreeDoc(
		el("Sequence", 2, nil,
			el("Action", 3, map[string]string{"ID": "MoveTo"}),
			el("Condition", 4, map[string]string{"ID": "BatteryOK"}),
			el("Decorator", 5, map[string]string{"ID": "Inverter"},
				el("Action", 6, map[string]string{"ID": "Probe"}),
			),
			el("SubTree", 7, map[string]string{"ID": "Other"}),
		),
	)

	result := CheckDocument(doc)
	assert.True(t, result.Valid(), "unexpected issues: %v", messages(result))
}

func TestCheckDocument_NilDocument(t *testing.T) {
	result := CheckDocument(nil)
	require.False(t, result.Valid())
}

func TestCheckDocument_DecoratorChildCount(t *testing.T) {
	doc := oneTreeDoc(
		el("Decorator", 4, map[string]string{"ID": "Inverter"},
			el("Action", 5, map[string]string{"ID": "A"}),
			el("Action", 6, map[string]string{"ID": "B"}),
		),
	)

	result := CheckDocument(doc)
	require.Len(t, result.Issues, 1)
	issue := result.Issues[0]
	assert.Equal(t, 4, issue.Line)
	assert.Equal(t, "The node <Decorator> must have exactly 1 child", issue.Message)
	assert.Equal(t, "line 4: The node <Decorator> must have exactly 1 child", issue.String())
}

func TestCheckDocument_LeavesMustBeChildless(t *testing.T) {
	doc := oneTreeDoc(
		el("Sequence", 2, nil,
			el("Action", 3, map[string]string{"ID": "A"},
				el("Action", 4, map[string]string{"ID": "B"}),
			),
			el("Condition", 5, map[string]string{"ID": "C"},
				el("Action", 6, map[string]string{"ID": "D"}),
			),
		),
	)

	result := CheckDocument(doc)
	msgs := messages(result)
	assert.Contains(t, msgs, "line 3: The node <Action> must not have any child")
	assert.Contains(t, msgs, "line 5: The node <Condition> must not have any child")
}

func TestCheckDocument_MissingIDs(t *testing.T) {
	doc := oneTreeDoc(
		el("Sequence", 2, nil,
			el("Action", 3, nil),
			el("Condition", 4, nil),
			el("Decorator", 5, nil, el("Action", 6, map[string]string{"ID": "X"})),
			el("SubTree", 7, nil),
		),
	)

	result := CheckDocument(doc)
	msgs := messages(result)
	assert.Contains(t, msgs, "line 3: The node <Action> must have the attribute [ID]")
	assert.Contains(t, msgs, "line 4: The node <Condition> must have the attribute [ID]")
	assert.Contains(t, msgs, "line 5: The node <Decorator> must have the attribute [ID]")
	assert.Contains(t, msgs, "line 7: The node <SubTree> must have the attribute [ID]")
}

func TestCheckDocument_ControlsNeedChildren(t *testing.T) {
	for _, name := range []string{"Sequence", "SequenceStar", "Fallback", "FallbackStar", "Parallel"} {
		doc := oneTreeDoc(el(name, 2, nil))
		result := CheckDocument(doc)
		require.Len(t, result.Issues, 1, "control %s", name)
		assert.Equal(t, "line 2: A Control node must have at least 1 child", result.Issues[0].String())
	}
}

func TestCheckDocument_SubTreeMustBeChildless(t *testing.T) {
	doc := oneTreeDoc(
		el("SubTree", 2, map[string]string{"ID": "Other"},
			el("Action", 3, map[string]string{"ID": "A"}),
		),
	)

	result := CheckDocument(doc)
	assert.Contains(t, messages(result), "line 2: The node <SubTree> must not have any child")
}

func TestCheckDocument_UnrecognizedNode(t *testing.T) {
	doc := oneTreeDoc(
		el("Sequence", 2, nil,
			el("Spaghetti", 3, nil),
		),
	)

	result := CheckDocument(doc)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "line 3: Node not recognized: <Spaghetti>", result.Issues[0].String())
	assert.Equal(t, CodeUnknown, result.Issues[0].Code)
}

func TestCheckDocument_AccumulatesAcrossTrees(t *testing.T) {
	doc := &schema.Document{
		Trees: []*schema.TreeDefinition{
			{ID: "A", Line: 2, Roots: []*schema.Element{
				el("Sequence", 3, nil), // no children
			}},
			{ID: "B", Line: 6, Roots: []*schema.Element{
				el("Action", 7, nil), // missing ID
			}},
		},
	}

	result := CheckDocument(doc)
	assert.Len(t, result.Issues, 2)
}

// --- tree-level rules ---

func TestCheckDocument_BehaviorTreeSingleChild(t *testing.T) {
	doc := &schema.Document{
		Trees: []*schema.TreeDefinition{{
			ID:   "Main",
			Line: 2,
			Roots: []*schema.Element{
				el("Action", 3, map[string]string{"ID": "A"}),
				el("Action", 4, map[string]string{"ID": "B"}),
			},
		}},
	}

	result := CheckDocument(doc)
	assert.Contains(t, messages(result), "line 2: The node <BehaviorTree> must have exactly 1 child")
}

func TestCheckDocument_EmptyBehaviorTree(t *testing.T) {
	doc := &schema.Document{
		Trees: []*schema.TreeDefinition{{ID: "Main", Line: 2}},
	}

	result := CheckDocument(doc)
	assert.Contains(t, messages(result), "line 2: The node <BehaviorTree> must have exactly 1 child")
}

func TestCheckDocument_DuplicateTreeIDs(t *testing.T) {
	doc := &schema.Document{
		Trees: []*schema.TreeDefinition{
			{ID: "Main", Line: 2, Roots: []*schema.Element{el("Action", 3, map[string]string{"ID": "A"})}},
			{ID: "Main", Line: 5, Roots: []*schema.Element{el("Action", 6, map[string]string{"ID": "B"})}},
		},
	}

	result := CheckDocument(doc)
	assert.Contains(t, messages(result), "line 5: Two <BehaviorTree> share the same ID [Main]")
}

func TestCheckDocument_AnonymousTreesNeedIDsWhenSeveral(t *testing.T) {
	tree := func(line int) *schema.TreeDefinition {
		return &schema.TreeDefinition{Line: line, Roots: []*schema.Element{
			el("Action", line+1, map[string]string{"ID": "A"}),
		}}
	}

	single := &schema.Document{Trees: []*schema.TreeDefinition{tree(2)}}
	assert.True(t, CheckDocument(single).Valid())

	several := &schema.Document{Trees: []*schema.TreeDefinition{tree(2), tree(5)}}
	result := CheckDocument(several)
	assert.Len(t, result.Issues, 2)
}

// --- model rules ---

func TestCheckDocument_SingleModelAllowed(t *testing.T) {
	doc := oneTreeDoc(el("Action", 2, map[string]string{"ID": "A"}))
	doc.Models = []*schema.TreeNodesModel{
		{Line: 5},
		{Line: 9},
	}

	result := CheckDocument(doc)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "line 9: Only a single node <TreeNodesModel> is supported", result.Issues[0].String())
}

func TestCheckDocument_ModelEntryRules(t *testing.T) {
	doc := oneTreeDoc(el("Action", 2, map[string]string{"ID": "A"}))
	doc.Models = []*schema.TreeNodesModel{{
		Line: 5,
		Nodes: []schema.NodeModel{
			{Kind: "Action", ID: "", Line: 6},
			{Kind: "Sequence", ID: "X", Line: 7},
			{Kind: "Condition", ID: "C", Line: 8, Params: []schema.ParamModel{
				{Label: "", Type: "string", Line: 9},
			}},
		},
	}}

	result := CheckDocument(doc)
	msgs := messages(result)
	assert.Contains(t, msgs, "line 6: The node <Action> must have the attribute [ID]")
	assert.Contains(t, msgs, "line 7: Node not recognized inside <TreeNodesModel>: <Sequence>")
	assert.Contains(t, msgs, "line 9: The node <Parameter> must have the attributes [label] and [type]")
}

package bt

import (
	"context"

	"github.com/rendis/arbor/internal/scripting"
	"github.com/rendis/arbor/pkg/schema"
)

// Script and ScriptCondition leaves evaluate an inline script against the
// node's blackboard scope. Parameters:
//
//	code   the script source (required)
//	lang   engine tag: expr (default), cel or jq
//	output Script only: blackboard key that receives the result
//
// The script sees a snapshot of the blackboard plus a "node" entry with the
// instance name and registration ID. Scripts cannot write to the blackboard
// directly; Script stores its result under the output key when one is set.

// newScriptAction builds the Script leaf. It succeeds unless evaluation
// fails, so it composes as a computation step rather than a check.
func newScriptAction(name string, params map[string]string) (Node, error) {
	engine, code, err := scriptSetup(name, params)
	if err != nil {
		return nil, err
	}
	output := params["output"]

	return NewAction("Script", name, params, func(n Node) schema.Status {
		result, err := engine.Evaluate(context.Background(), code, scriptData(n))
		if err != nil {
			return schema.StatusFailure
		}
		if output != "" {
			n.Blackboard().Set(output, valueFromResult(result))
		}
		return schema.StatusSuccess
	}), nil
}

// newScriptCondition builds the ScriptCondition leaf. The result's
// truthiness decides between SUCCESS and FAILURE; evaluation errors fail.
func newScriptCondition(name string, params map[string]string) (Node, error) {
	engine, code, err := scriptSetup(name, params)
	if err != nil {
		return nil, err
	}

	return NewCondition("ScriptCondition", name, params, func(n Node) schema.Status {
		result, err := engine.Evaluate(context.Background(), code, scriptData(n))
		if err != nil || !scripting.Truthy(result) {
			return schema.StatusFailure
		}
		return schema.StatusSuccess
	}), nil
}

// scriptSetup resolves the engine and code parameters. Unknown engines and
// missing code abort the build rather than failing silently at tick time.
func scriptSetup(name string, params map[string]string) (scripting.Engine, string, error) {
	code, ok := params["code"]
	if !ok || code == "" {
		return nil, "", schema.NewError(schema.ErrCodeBuild, "script node requires a code parameter").
			WithNode(name)
	}
	engine, err := scripting.Lookup(params["lang"])
	if err != nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeBuild, "script node %q: %s", name, err.Error()).
			WithNode(name).WithCause(err)
	}
	return engine, code, nil
}

func scriptData(n Node) map[string]any {
	data := n.Blackboard().Snapshot()
	data["node"] = map[string]any{
		"name": n.Name(),
		"id":   n.RegistrationID(),
	}
	return data
}

func valueFromResult(v any) schema.Value {
	switch val := v.(type) {
	case nil:
		return schema.AnyValue(nil)
	case bool:
		return schema.BoolValue(val)
	case string:
		return schema.StringValue(val)
	case float64:
		return schema.NumberValue(val)
	case float32:
		return schema.NumberValue(float64(val))
	case int:
		return schema.NumberValue(float64(val))
	case int32:
		return schema.NumberValue(float64(val))
	case int64:
		return schema.NumberValue(float64(val))
	case uint:
		return schema.NumberValue(float64(val))
	case uint64:
		return schema.NumberValue(float64(val))
	default:
		return schema.AnyValue(val)
	}
}

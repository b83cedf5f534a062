// Package scripting evaluates inline script parameters of Script and
// ScriptCondition leaves against a blackboard snapshot. Three engines are
// available, selected by the lang parameter: expr (default), cel and jq.
package scripting

import (
	"context"
	"sync"

	"github.com/rendis/arbor/pkg/schema"
)

// Engine evaluates one scripting language over a blackboard snapshot.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// DefaultLang is used when a script declares no lang parameter.
const DefaultLang = "expr"

var (
	initOnce sync.Once
	initErr  error
	engines  map[string]Engine
)

// Lookup returns the shared engine for a language tag. Engines are built
// once and reused; all of them are safe for concurrent use.
func Lookup(lang string) (Engine, error) {
	if lang == "" {
		lang = DefaultLang
	}

	initOnce.Do(func() {
		celEngine, err := NewCELEngine()
		if err != nil {
			initErr = err
			return
		}
		engines = map[string]Engine{
			"expr": NewExprEngine(),
			"cel":  celEngine,
			"jq":   NewGoJQEngine(),
		}
	})
	if initErr != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "initialize scripting engines").
			WithCause(initErr)
	}

	engine, ok := engines[lang]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown script lang %q", lang)
	}
	return engine, nil
}

// Truthy maps a script result onto the SUCCESS/FAILURE divide: nil and
// false are falsy, zero numbers and empty strings are falsy, anything else
// is truthy.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint:
		return val != 0
	case uint64:
		return val != 0
	default:
		return true
	}
}

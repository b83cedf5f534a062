package bt

import (
	"github.com/rendis/arbor/internal/validation"
	"github.com/rendis/arbor/pkg/schema"
)

// Validate checks a document's structural grammar without building it. All
// violations are accumulated, each tagged with its source line, so tooling
// can report everything at once.
func Validate(doc *schema.Document) *schema.ValidationResult {
	return validation.CheckDocument(doc)
}

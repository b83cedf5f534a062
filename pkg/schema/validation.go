package schema

import "fmt"

// ValidationIssue is a single structural problem, tagged with the source
// line it was found at (0 when the front-end could not attribute one).
type ValidationIssue struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return i.Message
}

// ValidationResult aggregates every issue found while checking a document.
// Validation never stops at the first problem; the whole batch is surfaced
// at once.
type ValidationResult struct {
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// Valid returns true if no issues were recorded.
func (r *ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}

// AddError appends an issue.
func (r *ValidationResult) AddError(line int, code, message string) {
	r.Issues = append(r.Issues, ValidationIssue{Line: line, Code: code, Message: message})
}

// AddErrorf appends an issue with a formatted message.
func (r *ValidationResult) AddErrorf(line int, code, format string, args ...any) {
	r.AddError(line, code, fmt.Sprintf(format, args...))
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// Messages returns the issues rendered as "line N: ..." strings, in order.
func (r *ValidationResult) Messages() []string {
	msgs := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		msgs = append(msgs, issue.String())
	}
	return msgs
}

// ToError converts the result to an Error if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Issues[0].Message
	if len(r.Issues) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Issues))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"issue_count": len(r.Issues),
			"issues":      r.Issues,
		})
}

package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrSiteNotFound is returned when a batch references a site id that does
// not exist. No readings are stored in that case.
var ErrSiteNotFound = errors.New("site not found")

// FieldIssue describes one schema violation inside a batch.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a whole batch; there is no partial acceptance.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IssuesFromValidator flattens validator errors into field issues so the
// API can report them in the 400 details array.
func IssuesFromValidator(err error) []FieldIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldIssue{{Field: "body", Message: err.Error()}}
	}

	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, FieldIssue{
			Field:   fieldPath(fe.Namespace()),
			Message: fmt.Sprintf("failed on '%s' rule", fe.Tag()),
		})
	}
	return issues
}

// fieldPath strips the top-level struct name from a validator namespace,
// e.g. "Batch.Readings[2].Timestamp" -> "readings[2].timestamp".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	return strings.ToLower(namespace)
}

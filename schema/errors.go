package schema

import (
	"errors"
	"fmt"
)

// ConsistencyError reports a request or ACL that does not match the schema.
// It signals an internal invariant violation, not a user input problem.
type ConsistencyError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ConsistencyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema consistency: %s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("schema consistency: %s: %s", e.Entity, e.Message)
}

// IsConsistencyError reports whether err wraps a ConsistencyError
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

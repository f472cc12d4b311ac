package hal

import (
	"fmt"

	"github.com/pkg/errors"
)

// RelationNotFoundError reports a relation name missing from a document's
// _links. Discovery operations treat this as "entity not known to the broker"
// and recover; mutating operations surface it to the caller.
type RelationNotFoundError struct {
	Relation string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation '%s' not found in document", e.Relation)
}

// IsRelationNotFound reports whether err (or its cause) is a missing-relation
// condition rather than a transport failure.
func IsRelationNotFound(err error) bool {
	_, ok := errors.Cause(err).(*RelationNotFoundError)
	return ok
}

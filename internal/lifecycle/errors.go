package lifecycle

import (
	"errors"
	"fmt"

	"github.com/noah-isme/internlog-api/internal/models"
)

var (
	// ErrIllegalTransition indicates the requested edge is not permitted for the actor.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrMissingRevisionContent indicates a resubmission carried no content change.
	ErrMissingRevisionContent = errors.New("revision content missing")
	// ErrStaleRevisionContent indicates the resubmission was written against content other than the stored log body.
	ErrStaleRevisionContent = errors.New("revision was made against stale content")
	// ErrMissingRevisionReason indicates a revision request carried no notes.
	ErrMissingRevisionReason = errors.New("revision notes missing")
	// ErrUnknownStatus indicates a status outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown log status")
)

// IllegalTransitionError describes a rejected (state, role, target) triple.
type IllegalTransitionError struct {
	From models.LogStatus
	To   models.LogStatus
	Role models.Role
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for role %q", e.From, e.To, e.Role)
}

// Is lets errors.Is match ErrIllegalTransition.
func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

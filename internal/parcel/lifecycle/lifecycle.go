package lifecycle

import (
	"fmt"
	"strings"

	"courier-sync/internal/parcel/model"
	appErrors "courier-sync/pkg/errors"
)

// State machine for parcel status transitions. Edges are directed;
// there are no implicit reverse transitions.
var validTransitions = map[model.ParcelStatus][]model.ParcelStatus{
	model.StatusBooked: {
		model.StatusAssigned,
	},
	model.StatusAssigned: {
		model.StatusPickedUp,
		model.StatusCancelled,
	},
	model.StatusPickedUp: {
		model.StatusInTransit,
		model.StatusFailed,
	},
	model.StatusInTransit: {
		model.StatusDelivered,
		model.StatusFailed,
	},
	model.StatusFailed: {
		model.StatusAssigned, // Reassign for another attempt
		model.StatusCancelled,
	},
	model.StatusDelivered: {
		// Terminal state - no transitions
	},
	model.StatusCancelled: {
		// Terminal state - no transitions
	},
}

// ProgressOrder is the fixed ordering used for timeline progress display.
// FAILED and CANCELLED never count as progress.
var ProgressOrder = []model.ParcelStatus{
	model.StatusBooked,
	model.StatusAssigned,
	model.StatusPickedUp,
	model.StatusInTransit,
	model.StatusDelivered,
}

// AvailableTransitions returns the admissible next statuses. Total over all
// seven states; terminal states yield an empty slice.
func AvailableTransitions(current model.ParcelStatus) []model.ParcelStatus {
	next := validTransitions[current]
	out := make([]model.ParcelStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current -> target is an edge of the table.
func CanTransition(current, target model.ParcelStatus) bool {
	for _, allowed := range validTransitions[current] {
		if target == allowed {
			return true
		}
	}
	return false
}

// RequiresNote reports whether the target status needs a free-text note.
// Only FAILED does: an agent must explain the failed attempt.
func RequiresNote(target model.ParcelStatus) bool {
	return target == model.StatusFailed
}

// ValidateTransition rejects an illegal or incomplete status submission
// before any network or database work happens.
func ValidateTransition(current, target model.ParcelStatus, note string) error {
	if _, known := validTransitions[current]; !known {
		return appErrors.NewAppError(
			appErrors.CodeIllegalTransition,
			fmt.Sprintf("Unknown current status: %s", current),
			nil,
		)
	}

	if !CanTransition(current, target) {
		return appErrors.NewAppError(
			appErrors.CodeIllegalTransition,
			fmt.Sprintf("Cannot transition from %s to %s", current, target),
			nil,
		)
	}

	if RequiresNote(target) && strings.TrimSpace(note) == "" {
		return appErrors.NewAppError(
			appErrors.CodeMissingRequiredField,
			fmt.Sprintf("A note is required when marking a parcel %s", target),
			nil,
		)
	}

	return nil
}

// ProgressIndex returns the position of status within ProgressOrder,
// or -1 when the status is not part of the progress ordering.
func ProgressIndex(status model.ParcelStatus) int {
	for i, s := range ProgressOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no transitions leave the given status.
func IsTerminal(status model.ParcelStatus) bool {
	return len(validTransitions[status]) == 0
}
